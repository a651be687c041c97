package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, dir, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(content), 0o600))
}

func TestFindProject_WalksUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeProject(t, root, `{"name":"my-theme","srcDir":"src","platformVersion":"2025.1"}`)

	nested := filepath.Join(root, "src", "app", "cards")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	p, err := FindProject(nested)
	require.NoError(t, err)

	wantDir, err := filepath.Abs(root)
	require.NoError(t, err)

	assert.Equal(t, wantDir, p.Dir)
	assert.Equal(t, "my-theme", p.Config.Name)
	assert.Equal(t, "2025.1", p.Config.PlatformVersion)
	assert.Equal(t, filepath.Join(wantDir, "src"), p.SourceDir())
	require.NoError(t, ValidateProject(p))
}

func TestFindProject_NotFound(t *testing.T) {
	t.Parallel()

	_, err := FindProject(t.TempDir())
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestLoadProject_BadJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeProject(t, dir, `{"name":`)

	_, err := LoadProject(filepath.Join(dir, ProjectConfigFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestValidateProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), nil, 0o600))

	tests := []struct {
		name    string
		cfg     ProjectConfig
		wantMsg string
	}{
		{"missing name", ProjectConfig{SrcDir: "."}, "name: must not be empty"},
		{"missing srcDir", ProjectConfig{Name: "p"}, "srcDir: must not be empty"},
		{"escapes project", ProjectConfig{Name: "p", SrcDir: "../elsewhere"}, "inside the project directory"},
		{"srcDir absent", ProjectConfig{Name: "p", SrcDir: "src"}, "srcDir"},
		{"srcDir is file", ProjectConfig{Name: "p", SrcDir: "file.txt"}, "not a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateProject(&Project{Config: tt.cfg, Dir: dir})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
