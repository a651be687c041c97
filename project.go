package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/parthd4/hubspot-cli/internal/config"
	"github.com/parthd4/hubspot-cli/internal/devsync"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Work with HubSpot projects",
	}

	cmd.AddCommand(newProjectDevCmd())
	cmd.AddCommand(newProjectValidateCmd())
	cmd.AddCommand(newProjectBuildsCmd())

	return cmd
}

// loadRawConfig reads the config file for commands that run without a
// resolved account.
func loadRawConfig(cc *CLIContext) (*config.Config, string, error) {
	path := config.ResolveConfigPath(config.ReadEnvOverrides(), config.CLIOverrides{ConfigPath: cc.Flags.ConfigPath})

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	return cfg, path, nil
}

type projectSummary struct {
	Name            string `json:"name"`
	Dir             string `json:"dir"`
	SourceDir       string `json:"sourceDir"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	Files           int    `json:"files"`
	Bytes           int64  `json:"bytes"`
}

func newProjectValidateCmd() *cobra.Command {
	var projectDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check hsproject.json and count the files a build would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cfg, _, err := loadRawConfig(cc)
			if err != nil {
				return err
			}

			project, err := config.FindProject(projectDir)
			if err != nil {
				return err
			}

			if err := config.ValidateProject(project); err != nil {
				return err
			}

			filter := devsync.NewFilter(filepath.Join(project.Dir, cfg.Dev.IgnoreFile), cfg.Dev.AllowedExtensions, cc.Logger)

			files, err := collectFiles(project.SourceDir(), filter)
			if err != nil {
				return err
			}

			sum := projectSummary{
				Name:            project.Config.Name,
				Dir:             project.Dir,
				SourceDir:       project.SourceDir(),
				PlatformVersion: project.Config.PlatformVersion,
				Files:           len(files),
			}

			for _, f := range files {
				sum.Bytes += f.size
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(sum)
			}

			printTable(os.Stdout, []string{"PROJECT", "PLATFORM", "SOURCE", "FILES", "SIZE"}, [][]string{{
				sum.Name, sum.PlatformVersion, sum.SourceDir, strconv.Itoa(sum.Files), formatSize(sum.Bytes),
			}})

			return nil
		},
	}

	cmd.Flags().StringVar(&projectDir, "project-dir", ".", "directory inside the project")

	return cmd
}
