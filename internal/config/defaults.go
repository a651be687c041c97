package config

// Default values for configuration options. These represent "layer 0" of the
// override chain and work without any config file.
const (
	defaultDebounce          = "3500ms"
	defaultUploadConcurrency = 10
	defaultPollInterval      = "2s"
	defaultIgnoreFile        = ".hsignore"
	defaultLogLevel          = "info"
	defaultBaseURL           = "https://api.hubapi.com"
	defaultQABaseURL         = "https://api.hubapiqa.com"
	defaultTimeout           = "30s"
	defaultRequestsPerSecond = 10
	defaultUserAgent         = "hubspot-cli-go"
)

// defaultAllowedExtensions lists the file types a project build accepts.
var defaultAllowedExtensions = []string{
	".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs",
	".json", ".css", ".scss", ".html", ".hubl", ".md", ".txt",
	".svg", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".webp",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".graphql", ".yml", ".yaml",
}

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding so unset fields retain defaults.
func DefaultConfig() *Config {
	return &Config{
		Dev: DevConfig{
			Debounce:          defaultDebounce,
			UploadConcurrency: defaultUploadConcurrency,
			PollInterval:      defaultPollInterval,
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
			IgnoreFile:        defaultIgnoreFile,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
		Network: NetworkConfig{
			BaseURL:           defaultBaseURL,
			Timeout:           defaultTimeout,
			RequestsPerSecond: defaultRequestsPerSecond,
			UserAgent:         defaultUserAgent,
		},
	}
}

// DefaultUploadPermission picks the upload permission for an account when
// neither the flag nor the config file names one.
func DefaultUploadPermission(accountType string) string {
	switch accountType {
	case AccountTypeSandbox, AccountTypeDeveloperTest:
		return UploadAlways
	default:
		return UploadManual
	}
}
