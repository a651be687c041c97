package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfigPath        = "HUBSPOT_CONFIG_PATH"
	EnvAccount           = "HUBSPOT_ACCOUNT"
	EnvPersonalAccessKey = "HUBSPOT_PERSONAL_ACCESS_KEY" //nolint:gosec // variable name, not a credential
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath        string // HUBSPOT_CONFIG_PATH: override config file path
	Account           string // HUBSPOT_ACCOUNT: account name or ID
	PersonalAccessKey string // HUBSPOT_PERSONAL_ACCESS_KEY: replaces the key of the selected account
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:        os.Getenv(EnvConfigPath),
		Account:           os.Getenv(EnvAccount),
		PersonalAccessKey: os.Getenv(EnvPersonalAccessKey),
	}
}
