// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the HubSpot CLI. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags) and resolves one account per invocation.
package config

import "time"

// Account types. Sandbox and developer test accounts are safe targets for
// automatic uploads; standard accounts default to manual approval.
const (
	AccountTypeStandard      = "standard"
	AccountTypeDeveloperTest = "developer_test"
	AccountTypeSandbox       = "sandbox"
)

// Account environments.
const (
	EnvProd = "prod"
	EnvQA   = "qa"
)

// Upload permission values accepted in [dev] upload_permission and by the
// --upload-permission flag.
const (
	UploadAlways = "always"
	UploadManual = "manual"
	UploadNever  = "never"
)

// HistoryDisabled as [dev] history_file turns off build history recording.
const HistoryDisabled = "off"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	DefaultAccount string          `toml:"default_account"`
	Accounts       []AccountConfig `toml:"account"`
	Dev            DevConfig       `toml:"dev"`
	Logging        LoggingConfig   `toml:"logging"`
	Network        NetworkConfig   `toml:"network"`
}

// AccountConfig is one [[account]] entry. The personal access key is the
// credential exchanged for API access; authentication flows that produce it
// are handled elsewhere.
type AccountConfig struct {
	Name              string `toml:"name"`
	AccountID         int64  `toml:"account_id"`
	AccountType       string `toml:"account_type"`
	PersonalAccessKey string `toml:"personal_access_key"`
	Env               string `toml:"env"`
}

// DevConfig controls `project dev` behavior: how unsupported changes reach
// the remote build, how long the debounce window is, and which files are
// eligible for upload.
type DevConfig struct {
	UploadPermission  string   `toml:"upload_permission"`
	Debounce          string   `toml:"debounce"`
	UploadConcurrency int      `toml:"upload_concurrency"`
	PollInterval      string   `toml:"poll_interval"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	IgnoreFile        string   `toml:"ignore_file"`
	DevServerURL      string   `toml:"dev_server_url"`
	HotReloadDirs     []string `toml:"hot_reload_dirs"`
	// HistoryFile is the build history database. Empty uses the data
	// directory; "off" disables recording.
	HistoryFile string `toml:"history_file"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	BaseURL           string  `toml:"base_url"`
	Timeout           string  `toml:"timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath       string // --config
	Account          string // --account (name or numeric ID)
	UploadPermission string // --upload-permission (project dev only)
}

// ResolvedAccount is the fully merged view a command runs against: the
// selected account plus the global sections with durations already parsed.
type ResolvedAccount struct {
	AccountConfig

	ConfigPath string

	UploadPermission  string
	Debounce          time.Duration
	UploadConcurrency int
	PollInterval      time.Duration
	AllowedExtensions []string
	IgnoreFile        string
	DevServerURL      string
	HotReloadDirs     []string
	HistoryFile       string

	LogLevel string

	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// FindAccount returns the account matching name or numeric ID, or nil.
func (c *Config) FindAccount(nameOrID string) *AccountConfig {
	for i := range c.Accounts {
		a := &c.Accounts[i]
		if a.Name == nameOrID || formatAccountID(a.AccountID) == nameOrID {
			return a
		}
	}

	return nil
}
