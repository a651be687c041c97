package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parthd4/hubspot-cli/internal/config"
	"github.com/parthd4/hubspot-cli/internal/devserver"
	"github.com/parthd4/hubspot-cli/internal/devsync"
	"github.com/parthd4/hubspot-cli/internal/ui"
)

// devStopTimeout bounds teardown: dev server cleanup and the staged build
// cancel.
const devStopTimeout = 30 * time.Second

const devHelp = "y upload  n keep pending  q quit"

// keyHotReload is the status line showing the last hot reload.
const keyHotReload = "hotReload"

func newProjectDevCmd() *cobra.Command {
	var (
		projectDir string
		noUI       bool
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch the project and sync changes to a staged build",
		Long: `Start a local development session for the project containing the current
directory (or --project-dir).

Changes the local dev server can apply are applied without an upload. Other
changes go to a staged remote build according to the upload permission:

  always  upload automatically and build after a quiet period
  manual  wait for approval (press y) before uploading and building
  never   do not upload; the change stays local

The default is "always" for sandbox and developer test accounts and "manual"
otherwise. Quitting cancels the staged build; a hangup leaves it open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProjectDev(cmd, projectDir, noUI)
		},
	}

	cmd.Flags().String("upload-permission", "", "always, manual or never (default depends on account type)")
	cmd.Flags().StringVar(&projectDir, "project-dir", ".", "directory inside the project")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "log status lines instead of drawing the terminal view")

	return cmd
}

func runProjectDev(cmd *cobra.Command, projectDir string, noUI bool) error {
	cc := mustCLIContext(cmd.Context())

	project, err := config.FindProject(projectDir)
	if err != nil {
		return err
	}

	if err := config.ValidateProject(project); err != nil {
		return err
	}

	permission, err := devsync.ParseUploadPermission(cc.Cfg.UploadPermission)
	if err != nil {
		return err
	}

	unlock, err := writePIDFile(devLockPath(config.DefaultRuntimeDir(), cc.Cfg.AccountID, project.Config.Name))
	if err != nil {
		return err
	}
	defer unlock()

	interactive := !noUI && !cc.Flags.JSON && ui.IsInteractive(os.Stdout) && ui.IsInteractive(os.Stdin)
	title := fmt.Sprintf("%s on account %d (%s)", project.Config.Name, cc.Cfg.AccountID, permission)

	view := newSessionView(cc, title, interactive, os.Stdin)
	defer view.close()

	client, err := newAPIClient(cc)
	if err != nil {
		return err
	}

	devServer := newDevServer(cc.Cfg, view.renderer, cc.Logger)

	var recorder devsync.BuildRecorder

	if store, histErr := openHistory(cmd.Context(), cc.Cfg, cc.Logger); histErr != nil {
		cc.Logger.Warn("build history unavailable", slog.String("error", histErr.Error()))
	} else if store != nil {
		defer store.Close()

		recorder = store
	}

	stop, stopSignalsFn := stopSignals(cc.Logger)
	defer stopSignalsFn()

	mgr, err := devsync.NewManager(devsync.Options{
		AccountID:         cc.Cfg.AccountID,
		ProjectConfig:     &project.Config,
		ProjectDir:        project.Dir,
		Permission:        permission,
		Debounce:          cc.Cfg.Debounce,
		Concurrency:       cc.Cfg.UploadConcurrency,
		IgnoreFile:        cc.Cfg.IgnoreFile,
		AllowedExtensions: cc.Cfg.AllowedExtensions,
		API:               client,
		DevServer:         devServer,
		Renderer:          view.renderer,
		Keys:              view.keys,
		Stop:              stop,
		Recorder:          recorder,
		Logger:            cc.Logger,
	})
	if err != nil {
		return err
	}

	if code := mgr.Serve(cmd.Context(), devStopTimeout); code != devsync.ExitSuccess {
		if fatal := mgr.Err(); fatal != nil {
			return fmt.Errorf("dev session ended: %w", fatal)
		}

		return errors.New("dev session ended with errors")
	}

	return nil
}

// newDevServer picks the dev server bridge from config: an external server
// over websocket, the in-process hot reloader, or none.
func newDevServer(cfg *config.ResolvedAccount, renderer devsync.StatusRenderer, logger *slog.Logger) devsync.DevServer {
	switch {
	case cfg.DevServerURL != "":
		return devserver.NewSocketBridge(cfg.DevServerURL, logger)

	case len(cfg.HotReloadDirs) > 0:
		hr := devserver.NewHotReload(cfg.HotReloadDirs, nil, logger)

		reloads, _ := hr.Subscribe()

		go func() {
			for r := range reloads {
				renderer.Upsert(keyHotReload, "Reloaded "+r.Path)
			}
		}()

		return hr

	default:
		return nil
	}
}

// sessionView is where a dev session shows its status and takes keys from.
type sessionView struct {
	renderer devsync.StatusRenderer
	keys     <-chan string
	close    func()
}

// newSessionView starts the terminal UI when interactive. Otherwise status
// goes to the log and keys are read line by line from stdin, whatever the
// upload permission, so q always ends the session.
func newSessionView(cc *CLIContext, title string, interactive bool, stdin io.Reader) sessionView {
	if !interactive {
		return sessionView{
			renderer: ui.NewLogRenderer(cc.Logger),
			keys:     readKeys(stdin),
			close:    func() {},
		}
	}

	term := ui.NewTerminal(title, devHelp)
	term.Start()

	cc.Logger = buildLogger(cc.Cfg, term.LogWriter())

	return sessionView{
		renderer: term,
		keys:     term.Keys(),
		close: func() {
			if err := term.Stop(); err != nil {
				cc.Logger.Warn("terminal view failed", slog.String("error", err.Error()))
			}
		},
	}
}

// readKeys turns lines typed on r into key names for sessions without the
// terminal view. The first word of each line is the key.
func readKeys(r io.Reader) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		sc := bufio.NewScanner(r)
		for sc.Scan() {
			fields := strings.Fields(strings.ToLower(sc.Text()))
			if len(fields) == 0 {
				continue
			}

			out <- fields[0]
		}
	}()

	return out
}
