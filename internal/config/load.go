package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNoAccount is returned when no account can be selected: the config has
// no accounts, or the requested one does not exist.
var ErrNoAccount = errors.New("config: no account selected")

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ResolveConfigPath applies CLI > env > default precedence to the config
// file location.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the selected account merged with the global sections.
func Resolve(env EnvOverrides, cli CLIOverrides) (*ResolvedAccount, error) {
	cfgPath := ResolveConfigPath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveAccount(cfg, env, cli)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	return resolved, nil
}

// ResolveAccount selects an account (CLI > env > default_account > sole
// account) and merges it with the global sections.
func ResolveAccount(cfg *Config, env EnvOverrides, cli CLIOverrides) (*ResolvedAccount, error) {
	selector := cli.Account
	if selector == "" {
		selector = env.Account
	}

	if selector == "" {
		selector = cfg.DefaultAccount
	}

	var acct *AccountConfig

	switch {
	case selector != "":
		acct = cfg.FindAccount(selector)
		if acct == nil {
			return nil, fmt.Errorf("%w: account %q not found in config", ErrNoAccount, selector)
		}
	case len(cfg.Accounts) == 1:
		acct = &cfg.Accounts[0]
	default:
		return nil, fmt.Errorf("%w: set default_account or pass --account", ErrNoAccount)
	}

	resolved := &ResolvedAccount{
		AccountConfig:     *acct,
		UploadPermission:  cfg.Dev.UploadPermission,
		UploadConcurrency: cfg.Dev.UploadConcurrency,
		AllowedExtensions: cfg.Dev.AllowedExtensions,
		IgnoreFile:        cfg.Dev.IgnoreFile,
		DevServerURL:      cfg.Dev.DevServerURL,
		HotReloadDirs:     cfg.Dev.HotReloadDirs,
		HistoryFile:       cfg.Dev.HistoryFile,
		LogLevel:          cfg.Logging.LogLevel,
		BaseURL:           cfg.Network.BaseURL,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		UserAgent:         cfg.Network.UserAgent,
	}

	// Durations were validated by Validate; parse errors here mean the
	// caller bypassed Load, so fall back to defaults.
	resolved.Debounce = durationOr(cfg.Dev.Debounce, defaultDebounce)
	resolved.PollInterval = durationOr(cfg.Dev.PollInterval, defaultPollInterval)
	resolved.Timeout = durationOr(cfg.Network.Timeout, defaultTimeout)

	if resolved.Env == EnvQA && resolved.BaseURL == defaultBaseURL {
		resolved.BaseURL = defaultQABaseURL
	}

	if env.PersonalAccessKey != "" {
		resolved.PersonalAccessKey = env.PersonalAccessKey
	}

	if cli.UploadPermission != "" {
		resolved.UploadPermission = cli.UploadPermission
	}

	if resolved.UploadPermission == "" {
		resolved.UploadPermission = DefaultUploadPermission(resolved.AccountType)
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

func durationOr(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}

	return d
}

func formatAccountID(id int64) string {
	return strconv.FormatInt(id, 10)
}
