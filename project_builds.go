package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/parthd4/hubspot-cli/internal/config"
	"github.com/parthd4/hubspot-cli/internal/history"
)

const defaultBuildsLimit = 10

var errHistoryDisabled = errors.New("build history is disabled (history_file = \"off\")")

// openHistory opens the build history store named by config. It returns a
// nil store when history is disabled.
func openHistory(ctx context.Context, cfg *config.ResolvedAccount, logger *slog.Logger) (*history.Store, error) {
	path := cfg.HistoryFile

	switch path {
	case config.HistoryDisabled:
		return nil, nil
	case "":
		path = config.DefaultHistoryPath()
		if path == "" {
			return nil, errors.New("cannot determine data directory for build history")
		}
	}

	return history.Open(ctx, path, logger)
}

// buildOutput is the JSON schema for `project builds --json`.
type buildOutput struct {
	BuildID       int64     `json:"buildId"`
	DeployID      int64     `json:"deployId,omitempty"`
	BuildStatus   string    `json:"buildStatus"`
	DeployStatus  string    `json:"deployStatus"`
	Deployed      bool      `json:"deployed"`
	Reprovisioned bool      `json:"reprovisioned"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finishedAt"`
}

func newProjectBuildsCmd() *cobra.Command {
	var (
		projectDir string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List builds recorded by past dev sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			project, err := config.FindProject(projectDir)
			if err != nil {
				return err
			}

			store, err := openHistory(cmd.Context(), cc.Cfg, cc.Logger)
			if err != nil {
				return err
			}

			if store == nil {
				return errHistoryDisabled
			}
			defer store.Close()

			recs, err := store.Recent(cmd.Context(), cc.Cfg.AccountID, project.Config.Name, limit)
			if err != nil {
				return err
			}

			out := make([]buildOutput, 0, len(recs))
			for _, r := range recs {
				out = append(out, buildOutput{
					BuildID:       r.BuildID,
					DeployID:      r.DeployID,
					BuildStatus:   r.BuildStatus,
					DeployStatus:  r.DeployStatus,
					Deployed:      r.Deployed,
					Reprovisioned: r.Reprovisioned,
					Error:         r.Error,
					FinishedAt:    r.FinishedAt,
				})
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(out)
			}

			if len(out) == 0 {
				cc.Statusf("No builds recorded for %s on account %d\n", project.Config.Name, cc.Cfg.AccountID)

				return nil
			}

			rows := make([][]string, 0, len(out))
			for _, b := range out {
				rows = append(rows, []string{
					strconv.FormatInt(b.BuildID, 10),
					formatBuildState(b.BuildStatus),
					formatBuildState(b.DeployStatus),
					formatBuildResult(b),
					formatFinished(b.FinishedAt),
				})
			}

			printTable(os.Stdout, []string{"BUILD", "BUILD STATUS", "DEPLOY STATUS", "RESULT", "FINISHED"}, rows)

			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project-dir", ".", "directory inside the project")
	cmd.Flags().IntVar(&limit, "limit", defaultBuildsLimit, "maximum number of builds to list")

	return cmd
}
