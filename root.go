package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
	"github.com/parthd4/hubspot-cli/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAccount    string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigCommands lists commands that do not need a resolved account:
// they either manage the config file directly or never touch the API.
var skipConfigCommands = map[string]bool{
	"hs account":          true,
	"hs account list":     true,
	"hs account use":      true,
	"hs project":          true,
	"hs project validate": true,
	"hs version":          true,
}

// CLIFlags is a snapshot of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	Account    string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries per-invocation state from the root pre-run to
// subcommands. Cfg is nil for commands in skipConfigCommands.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.ResolvedAccount
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A missing
// context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("BUG: CLIContext not set; PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hs",
		Short:   "HubSpot CMS developer CLI",
		Long:    "Develop HubSpot CMS projects locally: watch, upload, build and deploy.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{
				Flags: CLIFlags{
					ConfigPath: flagConfigPath,
					Account:    flagAccount,
					JSON:       flagJSON,
					Verbose:    flagVerbose,
					Quiet:      flagQuiet,
				},
			}

			if !skipConfigCommands[cmd.CommandPath()] {
				resolved, err := loadConfig(cmd)
				if err != nil {
					return err
				}

				cc.Cfg = resolved
			}

			cc.Logger = buildLogger(cc.Cfg, os.Stderr)
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAccount, "account", "", "account name or ID")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newAccountCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain.
func loadConfig(cmd *cobra.Command) (*config.ResolvedAccount, error) {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		Account:    flagAccount,
	}

	// Only project dev defines --upload-permission.
	if f := cmd.Flags().Lookup("upload-permission"); f != nil && f.Changed {
		cli.UploadPermission = f.Value.String()
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger writing to w. The config-file log level
// is the baseline; --verbose and --quiet override it.
func buildLogger(cfg *config.ResolvedAccount, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newAPIClient builds a CMS API client for the resolved account.
func newAPIClient(cc *CLIContext) (*cmsapi.Client, error) {
	token, err := cmsapi.AccessKeyTokenSource(cc.Cfg.PersonalAccessKey)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w (set personal_access_key or %s)",
			cc.Cfg.Name, err, config.EnvPersonalAccessKey)
	}

	client := cmsapi.NewClient(cc.Cfg.BaseURL, &http.Client{Timeout: cc.Cfg.Timeout},
		token, cc.Logger, cc.Cfg.UserAgent+"/"+version)
	client.SetRateLimit(cc.Cfg.RequestsPerSecond)
	client.SetPollInterval(cc.Cfg.PollInterval)

	return client, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
