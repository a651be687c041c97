package main

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/parthd4/hubspot-cli/internal/config"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage configured HubSpot accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccountList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <name-or-id>",
		Short: "Set the default account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountUse,
	})

	return cmd
}

// accountOutput is the JSON schema for `account list --json`. The access key
// is never printed.
type accountOutput struct {
	Name      string `json:"name"`
	AccountID int64  `json:"accountId"`
	Type      string `json:"type"`
	Env       string `json:"env"`
	Default   bool   `json:"default"`
	HasKey    bool   `json:"hasAccessKey"`
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cfg, path, err := loadRawConfig(cc)
	if err != nil {
		return err
	}

	if len(cfg.Accounts) == 0 {
		cc.Statusf("No accounts configured in %s\n", path)

		return nil
	}

	return printAccounts(os.Stdout, cfg, cc.Flags.JSON)
}

func printAccounts(w io.Writer, cfg *config.Config, asJSON bool) error {
	out := make([]accountOutput, 0, len(cfg.Accounts))

	for _, a := range cfg.Accounts {
		typ := a.AccountType
		if typ == "" {
			typ = config.AccountTypeStandard
		}

		env := a.Env
		if env == "" {
			env = config.EnvProd
		}

		out = append(out, accountOutput{
			Name:      a.Name,
			AccountID: a.AccountID,
			Type:      typ,
			Env:       env,
			Default:   isDefaultAccount(cfg, a),
			HasKey:    a.PersonalAccessKey != "",
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	rows := make([][]string, 0, len(out))
	for _, a := range out {
		def := ""
		if a.Default {
			def = "*"
		}

		rows = append(rows, []string{a.Name, strconv.FormatInt(a.AccountID, 10), a.Type, a.Env, def})
	}

	printTable(w, []string{"NAME", "ACCOUNT ID", "TYPE", "ENV", "DEFAULT"}, rows)

	return nil
}

// isDefaultAccount mirrors account resolution: default_account by name or
// ID, or the only account when none is named.
func isDefaultAccount(cfg *config.Config, a config.AccountConfig) bool {
	if cfg.DefaultAccount == "" {
		return len(cfg.Accounts) == 1
	}

	return cfg.DefaultAccount == a.Name || cfg.DefaultAccount == strconv.FormatInt(a.AccountID, 10)
}

func runAccountUse(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	_, path, err := loadRawConfig(cc)
	if err != nil {
		return err
	}

	if err := config.SetDefaultAccount(path, args[0]); err != nil {
		return err
	}

	cc.Statusf("Default account set to %s\n", args[0])

	return nil
}
