package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-latest"
)

// releaseSource is where published releases are tagged.
var releaseSource = &latest.GithubTag{
	Owner:      "parthd4",
	Repository: "hubspot-cli",
}

// latestCheck looks up the newest release. Tests replace it.
var latestCheck = func(current string) (*latest.CheckResponse, error) {
	return latest.Check(releaseSource, current)
}

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersion(cmd.OutOrStdout(), version, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check for a newer release")

	return cmd
}

func printVersion(w io.Writer, current string, check bool) error {
	fmt.Fprintf(w, "hs %s\n", current)

	if !check {
		return nil
	}

	// Development builds have no comparable version.
	if current == "dev" {
		fmt.Fprintln(w, "Update check skipped for development builds.")

		return nil
	}

	res, err := latestCheck(current)
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}

	if res.Outdated {
		fmt.Fprintf(w, "A newer release is available: %s\n", res.Current)
	} else {
		fmt.Fprintln(w, "You are running the latest release.")
	}

	return nil
}
