package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minUploadConcurrency = 1
	maxUploadConcurrency = 32
	minDebounce          = 100 * time.Millisecond
	minPollInterval      = 500 * time.Millisecond
	minTimeout           = 1 * time.Second
)

var validAccountTypes = map[string]bool{
	"":                       true, // treated as standard
	AccountTypeStandard:      true,
	AccountTypeDeveloperTest: true,
	AccountTypeSandbox:       true,
}

var validEnvs = map[string]bool{
	"":      true, // treated as prod
	EnvProd: true,
	EnvQA:   true,
}

var validUploadPermissions = map[string]bool{
	UploadAlways: true,
	UploadManual: true,
	UploadNever:  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks all configuration values and returns all errors found so
// users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAccounts(cfg)...)
	errs = append(errs, validateDev(&cfg.Dev)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints on the final merged account, after
// environment and CLI overrides have been applied.
func ValidateResolved(ra *ResolvedAccount) error {
	var errs []error

	if ra.AccountID <= 0 {
		errs = append(errs, fmt.Errorf("account %q: account_id must be positive", ra.Name))
	}

	if !validUploadPermissions[ra.UploadPermission] {
		errs = append(errs, fmt.Errorf("upload_permission: must be always, manual or never, got %q", ra.UploadPermission))
	}

	return errors.Join(errs...)
}

func validateAccounts(cfg *Config) []error {
	var errs []error

	names := make(map[string]bool)
	ids := make(map[int64]bool)

	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]

		label := a.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		if a.Name == "" {
			errs = append(errs, fmt.Errorf("account %s: name must not be empty", label))
		} else if names[a.Name] {
			errs = append(errs, fmt.Errorf("account %s: duplicate name", label))
		}

		names[a.Name] = true

		if a.AccountID <= 0 {
			errs = append(errs, fmt.Errorf("account %s: account_id must be positive", label))
		} else if ids[a.AccountID] {
			errs = append(errs, fmt.Errorf("account %s: duplicate account_id %d", label, a.AccountID))
		}

		ids[a.AccountID] = true

		if !validAccountTypes[a.AccountType] {
			errs = append(errs, fmt.Errorf("account %s: invalid account_type %q", label, a.AccountType))
		}

		if !validEnvs[a.Env] {
			errs = append(errs, fmt.Errorf("account %s: env must be prod or qa, got %q", label, a.Env))
		}
	}

	if cfg.DefaultAccount != "" && cfg.FindAccount(cfg.DefaultAccount) == nil {
		errs = append(errs, fmt.Errorf("default_account: %q does not match any account", cfg.DefaultAccount))
	}

	return errs
}

func validateDev(d *DevConfig) []error {
	var errs []error

	if d.UploadPermission != "" && !validUploadPermissions[d.UploadPermission] {
		errs = append(errs, fmt.Errorf("upload_permission: must be always, manual or never, got %q", d.UploadPermission))
	}

	if err := validateDurationMin("debounce", d.Debounce, minDebounce); err != nil {
		errs = append(errs, err)
	}

	if err := validateDurationMin("poll_interval", d.PollInterval, minPollInterval); err != nil {
		errs = append(errs, err)
	}

	if d.UploadConcurrency < minUploadConcurrency || d.UploadConcurrency > maxUploadConcurrency {
		errs = append(errs, fmt.Errorf("upload_concurrency: must be between %d and %d, got %d",
			minUploadConcurrency, maxUploadConcurrency, d.UploadConcurrency))
	}

	for _, ext := range d.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("allowed_extensions: %q must start with a dot", ext))
		}
	}

	if d.IgnoreFile == "" {
		errs = append(errs, errors.New("ignore_file: must not be empty"))
	}

	if d.DevServerURL != "" {
		u, err := url.Parse(d.DevServerURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("dev_server_url: must be a ws:// or wss:// URL, got %q", d.DevServerURL))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("log_level: must be debug, info, warn or error, got %q", l.LogLevel)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	u, err := url.Parse(n.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url: must be an absolute URL, got %q", n.BaseURL))
	}

	if err := validateDurationMin("timeout", n.Timeout, minTimeout); err != nil {
		errs = append(errs, err)
	}

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must not be negative, got %v", n.RequestsPerSecond))
	}

	return errs
}

func validateDurationMin(field, value string, floor time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < floor {
		return fmt.Errorf("%s: must be at least %s, got %s", field, floor, value)
	}

	return nil
}
