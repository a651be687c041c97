package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory available")
	}

	assert.Equal(t, configFileName, filepath.Base(path))
	assert.Equal(t, appName, filepath.Base(filepath.Dir(path)))
}

func TestLinuxConfigDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("linux only")
	}

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, appName), DefaultConfigDir())
}

func TestDefaultRuntimeDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("linux only")
	}

	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	assert.Equal(t, filepath.Join(dir, appName), DefaultRuntimeDir())

	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.True(t, strings.HasSuffix(DefaultRuntimeDir(), appName))
}

func TestDefaultDataDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("linux only")
	}

	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	assert.Equal(t, filepath.Join(dir, appName), DefaultDataDir())
	assert.Equal(t, filepath.Join(dir, appName, historyFileName), DefaultHistoryPath())
}
