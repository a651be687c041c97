package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthd4/hubspot-cli/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags (integration tests).
//
// Setting a global before newRootCmd() and expecting it to survive is a bug.

const testConfig = `
default_account = "prod-portal"

[[account]]
name = "prod-portal"
account_id = 123456
account_type = "standard"
personal_access_key = "pak-prod"

[[account]]
name = "dev-sandbox"
account_id = 654321
account_type = "sandbox"
personal_access_key = "pak-sandbox"
`

// saveGlobalFlags restores the persistent flag globals when the test ends.
func saveGlobalFlags(t *testing.T) {
	t.Helper()

	oldConfig, oldAccount := flagConfigPath, flagAccount
	oldJSON, oldVerbose, oldQuiet := flagJSON, flagVerbose, flagQuiet

	t.Cleanup(func() {
		flagConfigPath, flagAccount = oldConfig, oldAccount
		flagJSON, flagVerbose, flagQuiet = oldJSON, oldVerbose, oldQuiet
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	saveGlobalFlags(t)

	tests := []struct {
		name     string
		cfgLevel string
		verbose  bool
		quiet    bool
		want     slog.Level
	}{
		{"default", "", false, false, slog.LevelInfo},
		{"config debug", "debug", false, false, slog.LevelDebug},
		{"config warn", "warn", false, false, slog.LevelWarn},
		{"verbose overrides config", "error", true, false, slog.LevelDebug},
		{"quiet overrides config", "debug", false, true, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagVerbose = tt.verbose
			flagQuiet = tt.quiet

			logger := buildLogger(&config.ResolvedAccount{LogLevel: tt.cfgLevel}, os.Stderr)
			h := logger.Handler()

			assert.True(t, h.Enabled(context.Background(), tt.want))

			if tt.want > slog.LevelDebug {
				assert.False(t, h.Enabled(context.Background(), tt.want-4))
			}
		})
	}
}

func TestBuildLogger_NilConfig(t *testing.T) {
	saveGlobalFlags(t)

	flagVerbose, flagQuiet = false, false

	logger := buildLogger(nil, os.Stderr)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

// --- CLIContext tests ---

func TestMustCLIContext_PanicsWithoutPreRun(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestMustCLIContext_ReturnsStored(t *testing.T) {
	t.Parallel()

	cc := &CLIContext{Flags: CLIFlags{JSON: true}}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	assert.Same(t, cc, mustCLIContext(ctx))
}

// --- command tree tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, args := range [][]string{
		{"project", "dev"},
		{"project", "validate"},
		{"upload"},
		{"mv"},
		{"account", "list"},
		{"account", "use"},
		{"version"},
	} {
		sub, _, err := cmd.Find(args)
		require.NoError(t, err, "%v", args)
		assert.Equal(t, args[len(args)-1], sub.Name())
	}
}

func TestSkipConfigCommands_UsesCommandPath(t *testing.T) {
	cmd := newRootCmd()

	for _, args := range [][]string{
		{"account"},
		{"account", "list"},
		{"account", "use"},
		{"project"},
		{"project", "validate"},
		{"version"},
	} {
		sub, _, err := cmd.Find(args)
		require.NoError(t, err)

		path := sub.CommandPath()
		assert.True(t, skipConfigCommands[path], "CommandPath %q should be in skipConfigCommands", path)
	}

	// Bare names would collide across subcommands.
	assert.False(t, skipConfigCommands["list"])
	assert.False(t, skipConfigCommands["use"])
}

func TestPersistentPreRun_SkipCommandsNeedNoAccount(t *testing.T) {
	saveGlobalFlags(t)

	cmd := newRootCmd()
	flagConfigPath = filepath.Join(t.TempDir(), "missing.toml")

	for _, args := range [][]string{{"account", "list"}, {"version"}, {"project", "validate"}} {
		sub, _, err := cmd.Find(args)
		require.NoError(t, err)

		sub.SetContext(t.Context())
		require.NoError(t, cmd.PersistentPreRunE(sub, nil), "%v", args)

		cc := mustCLIContext(sub.Context())
		assert.Nil(t, cc.Cfg)
		assert.NotNil(t, cc.Logger)
	}
}

func TestPersistentPreRun_AccountCommandsNeedAccount(t *testing.T) {
	saveGlobalFlags(t)
	t.Setenv(config.EnvAccount, "")

	cmd := newRootCmd()
	flagConfigPath = filepath.Join(t.TempDir(), "missing.toml")

	sub, _, err := cmd.Find([]string{"upload"})
	require.NoError(t, err)

	sub.SetContext(t.Context())
	err = cmd.PersistentPreRunE(sub, nil)
	require.ErrorIs(t, err, config.ErrNoAccount)
}

// --- loadConfig tests ---

func TestLoadConfig_SelectsDefaultAccount(t *testing.T) {
	saveGlobalFlags(t)
	t.Setenv(config.EnvAccount, "")
	t.Setenv(config.EnvPersonalAccessKey, "")

	cmd := newRootCmd()
	flagConfigPath = writeConfigFile(t, testConfig)

	resolved, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), resolved.AccountID)
	assert.Equal(t, config.UploadManual, resolved.UploadPermission)
}

func TestLoadConfig_UploadPermissionFlag(t *testing.T) {
	saveGlobalFlags(t)
	t.Setenv(config.EnvAccount, "")

	cmd := newRootCmd()
	flagConfigPath = writeConfigFile(t, testConfig)

	dev, _, err := cmd.Find([]string{"project", "dev"})
	require.NoError(t, err)
	require.NoError(t, dev.Flags().Set("upload-permission", "never"))

	resolved, err := loadConfig(dev)
	require.NoError(t, err)
	assert.Equal(t, config.UploadNever, resolved.UploadPermission)
}

func TestLoadConfig_AccountFlag(t *testing.T) {
	saveGlobalFlags(t)
	t.Setenv(config.EnvAccount, "")

	cmd := newRootCmd()
	flagConfigPath = writeConfigFile(t, testConfig)
	flagAccount = "654321"

	resolved, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "dev-sandbox", resolved.Name)
	// Sandbox accounts upload automatically unless configured otherwise.
	assert.Equal(t, config.UploadAlways, resolved.UploadPermission)
}

// --- newAPIClient tests ---

func TestNewAPIClient_RequiresAccessKey(t *testing.T) {
	t.Parallel()

	cc := &CLIContext{
		Cfg:    &config.ResolvedAccount{AccountConfig: config.AccountConfig{Name: "prod"}},
		Logger: quietLogger(),
	}

	_, err := newAPIClient(cc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvPersonalAccessKey)
}
