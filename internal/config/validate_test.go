package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Accounts = []AccountConfig{
		{Name: "main", AccountID: 100, AccountType: AccountTypeStandard},
	}

	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(DefaultConfig()))
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"empty account name", func(c *Config) { c.Accounts[0].Name = "" }, "name must not be empty"},
		{"zero account id", func(c *Config) { c.Accounts[0].AccountID = 0 }, "account_id must be positive"},
		{"bad account type", func(c *Config) { c.Accounts[0].AccountType = "enterprise" }, "invalid account_type"},
		{"bad env", func(c *Config) { c.Accounts[0].Env = "staging" }, "env must be prod or qa"},
		{"duplicate name", func(c *Config) {
			c.Accounts = append(c.Accounts, AccountConfig{Name: "main", AccountID: 200})
		}, "duplicate name"},
		{"duplicate id", func(c *Config) {
			c.Accounts = append(c.Accounts, AccountConfig{Name: "other", AccountID: 100})
		}, "duplicate account_id"},
		{"dangling default", func(c *Config) { c.DefaultAccount = "ghost" }, "default_account"},
		{"bad permission", func(c *Config) { c.Dev.UploadPermission = "sometimes" }, "upload_permission"},
		{"debounce too short", func(c *Config) { c.Dev.Debounce = "10ms" }, "debounce: must be at least"},
		{"debounce unparsable", func(c *Config) { c.Dev.Debounce = "soon" }, "debounce: invalid duration"},
		{"poll too short", func(c *Config) { c.Dev.PollInterval = "1ms" }, "poll_interval"},
		{"concurrency zero", func(c *Config) { c.Dev.UploadConcurrency = 0 }, "upload_concurrency"},
		{"concurrency huge", func(c *Config) { c.Dev.UploadConcurrency = 500 }, "upload_concurrency"},
		{"extension without dot", func(c *Config) { c.Dev.AllowedExtensions = []string{"js"} }, "must start with a dot"},
		{"empty ignore file", func(c *Config) { c.Dev.IgnoreFile = "" }, "ignore_file"},
		{"http dev server", func(c *Config) { c.Dev.DevServerURL = "http://localhost:3000" }, "dev_server_url"},
		{"bad log level", func(c *Config) { c.Logging.LogLevel = "verbose" }, "log_level"},
		{"relative base url", func(c *Config) { c.Network.BaseURL = "api.hubapi.com" }, "base_url"},
		{"timeout too short", func(c *Config) { c.Network.Timeout = "1ms" }, "timeout"},
		{"negative rps", func(c *Config) { c.Network.RequestsPerSecond = -1 }, "requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Logging.LogLevel = "loud"
	cfg.Dev.UploadConcurrency = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "upload_concurrency")
}

func TestValidate_WebsocketDevServerAccepted(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Dev.DevServerURL = "ws://localhost:5173/__hs"
	require.NoError(t, Validate(cfg))
}

func TestDefaultUploadPermission(t *testing.T) {
	t.Parallel()

	assert.Equal(t, UploadAlways, DefaultUploadPermission(AccountTypeSandbox))
	assert.Equal(t, UploadAlways, DefaultUploadPermission(AccountTypeDeveloperTest))
	assert.Equal(t, UploadManual, DefaultUploadPermission(AccountTypeStandard))
	assert.Equal(t, UploadManual, DefaultUploadPermission(""))
}
