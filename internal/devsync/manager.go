package devsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
	"github.com/parthd4/hubspot-cli/internal/config"
)

// ErrMissingConfig is returned by NewManager when a required input is absent.
var ErrMissingConfig = errors.New("devsync: missing required configuration")

const (
	defaultDebounce = 3500 * time.Millisecond
	eventBufferSize = 256
)

// Options configures a Manager. AccountID, ProjectConfig, ProjectDir and API
// are required.
type Options struct {
	AccountID     int64
	ProjectConfig *config.ProjectConfig
	ProjectDir    string

	Permission        UploadPermission
	Debounce          time.Duration
	Concurrency       int
	IgnoreFile        string // relative to ProjectDir unless absolute
	AllowedExtensions []string

	API       BuildAPI
	DevServer DevServer      // nil: every change requires an upload
	Renderer  StatusRenderer // nil: status lines are dropped
	Keys      <-chan string  // key names, e.g. "y", "n", "q", "ctrl+c"
	Stop      <-chan StopReason
	Source    ChangeSource  // nil: watch the project source directory
	Recorder  BuildRecorder // nil: builds are not recorded
	Logger    *slog.Logger
}

// taskQueue is the upload queue as seen by the manager.
type taskQueue interface {
	Pauser
	Enqueue(ctx context.Context, name string, fn func(context.Context) error)
	OnIdle(ctx context.Context) error
	Len() int
}

// buildResult is sent from a build goroutine back to the loop.
type buildResult struct {
	outcome BuildOutcome
	err     error
}

// Manager is the local development session: it routes file changes to the
// dev server or the staged build according to the upload permission, and
// drives builds. All routing happens on the goroutine running Run; remote
// calls for builds run on a separate goroutine and report back over a
// channel.
type Manager struct {
	opts      Options
	sourceDir string
	logger    *slog.Logger

	filter    *Filter
	standby   *StandbyBuffer
	queue     taskQueue
	debounce  *Debouncer
	builds    *BuildController
	failures  *failureTracker
	source    ChangeSource
	renderer  StatusRenderer
	devServer DevServer

	status atomic.Int32

	// Owned by the Run goroutine.
	building         bool
	rebuildPending   bool
	awaitingApproval bool
	devServerWarned  bool

	buildDone chan buildResult
	buildWG   sync.WaitGroup
	cancelRun context.CancelFunc

	errMu    sync.Mutex
	fatalErr error
}

// NewManager validates opts and wires the session's components. Nothing is
// started until Start.
func NewManager(opts Options) (*Manager, error) {
	var missing []string

	if opts.AccountID <= 0 {
		missing = append(missing, "target account ID")
	}

	if opts.ProjectConfig == nil {
		missing = append(missing, "project config")
	}

	if opts.ProjectDir == "" {
		missing = append(missing, "project directory")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	if opts.API == nil {
		return nil, fmt.Errorf("%w: build API", ErrMissingConfig)
	}

	if opts.Permission == "" {
		opts.Permission = PermissionManual
	}

	if _, err := ParseUploadPermission(string(opts.Permission)); err != nil {
		return nil, err
	}

	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = nopRenderer{}
	}

	sourceDir := filepath.Join(opts.ProjectDir, opts.ProjectConfig.SrcDir)

	ignorePath := opts.IgnoreFile
	if ignorePath != "" && !filepath.IsAbs(ignorePath) {
		ignorePath = filepath.Join(opts.ProjectDir, ignorePath)
	}

	filter := NewFilter(ignorePath, opts.AllowedExtensions, logger)
	queue := NewUploadQueue(opts.Concurrency, logger)

	m := &Manager{
		opts:      opts,
		sourceDir: sourceDir,
		logger:    logger,
		filter:    filter,
		standby:   NewStandbyBuffer(filter, logger),
		queue:     queue,
		debounce:  NewDebouncer(opts.Debounce),
		builds: NewBuildController(opts.API, queue, opts.AccountID, opts.ProjectConfig.Name,
			opts.ProjectConfig.PlatformVersion, opts.Permission, logger),
		failures:  newFailureTracker(logger),
		source:    opts.Source,
		renderer:  renderer,
		devServer: opts.DevServer,
		buildDone: make(chan buildResult, 1),
	}

	if m.source == nil {
		m.source = NewWatcher(sourceDir, filter, logger)
	}

	return m, nil
}

// Status returns the current dev mode status.
func (m *Manager) Status() DevModeStatus {
	return DevModeStatus(m.status.Load())
}

// Err returns the error that ended the session with StopFatal, if any.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	return m.fatalErr
}

func (m *Manager) setFatal(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	m.fatalErr = err
}

// Start launches the dev server bridge and, with permission always, opens
// the first staged build. A dev server that fails to start is dropped and
// every change is then uploaded.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("starting dev session",
		slog.Int64("account_id", m.opts.AccountID),
		slog.String("project", m.opts.ProjectConfig.Name),
		slog.String("source_dir", m.sourceDir),
		slog.String("upload_permission", string(m.opts.Permission)),
	)

	if m.devServer != nil {
		err := m.devServer.Start(ctx, DevServerConfig{
			AccountID:   m.opts.AccountID,
			ProjectName: m.opts.ProjectConfig.Name,
			ProjectDir:  m.opts.ProjectDir,
			SourceDir:   m.sourceDir,
		})
		if err != nil {
			m.logger.Warn("dev server failed to start, all changes will be uploaded",
				slog.String("error", err.Error()),
			)
			m.renderer.Upsert(KeyDevServer, "Local dev server unavailable: "+err.Error())
			m.devServer = nil
		}
	}

	if m.opts.Permission == PermissionAlways {
		if err := m.builds.Provision(ctx); err != nil {
			m.setFatal(err)

			return err
		}
	}

	m.setStatus(StatusClean)

	return nil
}

// Run processes changes, keys, debounce expiry and build results until the
// session should end, and returns why.
func (m *Manager) Run(ctx context.Context) StopReason {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancelRun = cancel

	events := make(chan ChangeEvent, eventBufferSize)
	watchDone := make(chan error, 1)

	go func() {
		watchDone <- m.source.Run(runCtx, events)
	}()

	keys := m.opts.Keys
	stop := m.opts.Stop

	for {
		select {
		case <-ctx.Done():
			return StopInterrupt

		case r := <-stop:
			return r

		case ev := <-events:
			m.handleEvent(runCtx, ev)

		case key, ok := <-keys:
			if !ok {
				keys = nil

				continue
			}

			if r, done := m.handleKey(runCtx, key); done {
				return r
			}

		case <-m.debounce.Fired():
			m.onDebounce(runCtx)

		case res := <-m.buildDone:
			if r, done := m.onBuildDone(runCtx, res); done {
				return r
			}

		case err := <-watchDone:
			watchDone = nil

			if err != nil {
				m.logger.Error("file watcher stopped", slog.String("error", err.Error()))
				m.setFatal(err)

				return StopFatal
			}
		}
	}
}

// Stop tears the session down and returns the process exit code. Except
// after a hangup, the open staged build is cancelled; a failed cancel makes
// the exit code non-zero.
func (m *Manager) Stop(ctx context.Context, reason StopReason) int {
	m.logger.Info("stopping dev session", slog.String("reason", reason.String()))

	m.debounce.Cancel()

	if m.cancelRun != nil {
		m.cancelRun()
	}

	m.buildWG.Wait()

	code := ExitSuccess
	if reason == StopFatal {
		code = ExitFailure
	}

	if m.devServer != nil {
		if err := m.devServer.Cleanup(ctx); err != nil {
			m.logger.Warn("dev server cleanup failed", slog.String("error", err.Error()))
		}
	}

	if reason == StopHangup {
		if id := m.builds.BuildID(); id != 0 {
			m.logger.Info("leaving staged build open after hangup", slog.Int64("build_id", id))
		}
	} else if err := m.builds.Cancel(ctx); err != nil {
		m.logger.Error("failed to cancel staged build", slog.String("error", err.Error()))

		code = ExitFailure
	}

	m.renderer.Remove(KeyDevMode)

	return code
}

// Serve runs Start, Run and Stop. Stop gets its own context, detached from
// ctx cancellation and bounded by stopTimeout, so cleanup still reaches the
// API after an interrupt.
func (m *Manager) Serve(ctx context.Context, stopTimeout time.Duration) int {
	stopCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	}

	if err := m.Start(ctx); err != nil {
		m.logger.Error("dev session failed to start", slog.String("error", err.Error()))

		sc, cancel := stopCtx()
		defer cancel()

		return m.Stop(sc, StopFatal)
	}

	reason := m.Run(ctx)

	sc, cancel := stopCtx()
	defer cancel()

	return m.Stop(sc, reason)
}

// handleEvent routes one change. It runs to completion (through queuing, not
// through the remote response) before the next change is handled.
func (m *Manager) handleEvent(ctx context.Context, ev ChangeEvent) {
	res, ok := classifyChange(ctx, m.devServer, ev, m.logger)
	switch {
	case !ok:
		m.devServerWarned = true
		m.renderer.Upsert(KeyDevServer, "Dev server did not respond; uploading "+ev.RemotePath)
	case m.devServerWarned:
		m.devServerWarned = false
		m.renderer.Remove(KeyDevServer)
	}

	if !res.UploadRequired {
		m.handleSupported(ctx, ev, res)

		return
	}

	switch m.opts.Permission {
	case PermissionNever:
		if !m.filter.Allows(ev) {
			return
		}

		m.logger.Info("change requires an upload but uploads are disabled",
			slog.String("path", ev.RemotePath),
		)
		m.setStatus(StatusNoUploadsAllowed)

	case PermissionManual:
		if m.standby.Push(ev) {
			m.awaitingApproval = true
			m.setStatus(StatusManualUploadRequired)
		}

	default:
		m.handleUnsupported(ctx, ev)
	}
}

func (m *Manager) handleSupported(ctx context.Context, ev ChangeEvent, res NotifyResult) {
	ev.Supported = true

	// Supported changes still reach the remote build with the next upload.
	if m.opts.Permission != PermissionNever {
		m.standby.Push(ev)
	}

	if err := m.devServer.Execute(ctx, ev, res); err != nil {
		m.logger.Warn("dev server failed to apply change",
			slog.String("path", ev.RemotePath),
			slog.String("error", err.Error()),
		)
	}

	m.setStatus(StatusSupportedChange)
}

// handleUnsupported applies permission always.
func (m *Manager) handleUnsupported(ctx context.Context, ev ChangeEvent) {
	if !m.standby.Push(ev) {
		return
	}

	m.setStatus(StatusUploadPending)

	if m.building {
		return
	}

	if m.queue.IsPaused() {
		// A previous queue attempt failed and left uploads paused.
		if m.builds.State() != BuildStaged {
			return
		}

		m.logger.Info("resuming uploads after failed build queue")
		m.queue.Resume()
	}

	m.flushStandby(ctx)
}

// flushStandby moves every standby change into the upload queue and, with
// permission always, re-arms the build trigger per change. Callers must
// ensure no build is running and the queue is not paused.
func (m *Manager) flushStandby(ctx context.Context) int {
	entries := m.standby.Flush()

	for _, ev := range entries {
		m.enqueueChange(ctx, ev)

		if m.opts.Permission == PermissionAlways && !m.queue.IsPaused() {
			m.debounce.Arm()
		}
	}

	return len(entries)
}

// enqueueChange schedules the upload or delete for ev. Failures are counted
// and shown but not retried.
func (m *Manager) enqueueChange(ctx context.Context, ev ChangeEvent) {
	m.queue.Enqueue(ctx, ev.RemotePath, func(ctx context.Context) error {
		err := m.sendChange(ctx, ev)
		if err != nil {
			m.failures.recordFailure(ev.RemotePath, err.Error())
		} else {
			m.failures.recordSuccess(ev.RemotePath)
		}

		m.renderFailures()

		return err
	})
}

func (m *Manager) sendChange(ctx context.Context, ev ChangeEvent) error {
	project := m.opts.ProjectConfig.Name

	if ev.IsDelete() {
		return m.opts.API.DeleteFile(ctx, m.opts.AccountID, project, ev.RemotePath)
	}

	return m.opts.API.UploadFile(ctx, m.opts.AccountID, project, ev.AbsolutePath, ev.RemotePath)
}

func (m *Manager) renderFailures() {
	paths := m.failures.failedPaths()
	if len(paths) == 0 {
		m.renderer.Remove(KeyFailures)

		return
	}

	m.renderer.Upsert(KeyFailures,
		fmt.Sprintf("%d file(s) failed to upload and will be sent with their next change: %s",
			len(paths), strings.Join(paths, ", ")))
}

func (m *Manager) handleKey(ctx context.Context, key string) (StopReason, bool) {
	switch strings.ToLower(key) {
	case "q":
		return StopQuit, true
	case "ctrl+c":
		return StopInterrupt, true
	case "y":
		m.approve(ctx)
	case "n":
		m.decline()
	}

	return 0, false
}

// approve starts a build for the changes awaiting manual approval: new
// staged build, flush, then queue immediately without debouncing.
func (m *Manager) approve(ctx context.Context) {
	if m.opts.Permission != PermissionManual || !m.awaitingApproval {
		return
	}

	if m.building {
		m.logger.Info("build already in progress, approve again once it finishes")

		return
	}

	m.awaitingApproval = false
	entries := m.standby.Flush()

	m.startBuild(ctx, StatusManualUpload, func(ctx context.Context) (BuildOutcome, error) {
		if m.builds.BuildID() == 0 {
			if err := m.builds.Provision(ctx); err != nil {
				return BuildOutcome{}, err
			}
		}

		m.queue.Resume()

		for _, ev := range entries {
			m.enqueueChange(ctx, ev)
		}

		if err := m.queue.OnIdle(ctx); err != nil {
			return BuildOutcome{}, err
		}

		return m.builds.QueueAndDeploy(ctx)
	})
}

// decline keeps the pending changes in standby for a later approval.
func (m *Manager) decline() {
	if m.opts.Permission != PermissionManual || !m.awaitingApproval {
		return
	}

	m.logger.Info("upload declined, changes kept pending",
		slog.Int("pending", m.standby.Len()),
	)
	m.renderer.Upsert(KeyBuild, fmt.Sprintf("%d change(s) kept pending. Press y to upload them.", m.standby.Len()))
}

func (m *Manager) onDebounce(ctx context.Context) {
	if m.opts.Permission != PermissionAlways {
		return
	}

	if m.building {
		m.rebuildPending = true

		return
	}

	if m.builds.State() != BuildStaged {
		return
	}

	m.startBuild(ctx, StatusUploadPending, m.builds.QueueAndDeploy)
}

// startBuild runs fn on its own goroutine; the result comes back to the loop
// through buildDone. Only one build runs at a time.
func (m *Manager) startBuild(ctx context.Context, status DevModeStatus, fn func(context.Context) (BuildOutcome, error)) {
	m.building = true
	m.rebuildPending = false
	m.setStatus(status)
	m.renderer.Upsert(KeyBuild, "Building...")

	m.buildWG.Add(1)

	go func() {
		defer m.buildWG.Done()

		out, err := fn(ctx)
		m.buildDone <- buildResult{outcome: out, err: err}
	}()
}

func (m *Manager) onBuildDone(ctx context.Context, res buildResult) (StopReason, bool) {
	m.building = false

	if res.err != nil {
		switch {
		case errors.Is(res.err, cmsapi.ErrMissingProjectProvision):
			m.logger.Info("staged build was cancelled outside this session, stopping")

			return StopRemoteCancelled, true

		case errors.Is(res.err, ErrProvisionFailed):
			m.logger.Error("could not provision a staged build", slog.String("error", res.err.Error()))
			m.setFatal(res.err)

			return StopFatal, true

		case ctx.Err() != nil:
			return 0, false

		default:
			m.logger.Warn("build was not queued, uploads stay paused until the next change",
				slog.String("error", res.err.Error()),
			)
			m.renderer.Upsert(KeyBuild, "Build could not be queued: "+res.err.Error())
			m.refreshStatus()

			return 0, false
		}
	}

	o := res.outcome
	m.recordBuild(ctx, o)

	if o.DeployErr != nil {
		m.renderer.Upsert(KeyBuild, fmt.Sprintf("Build #%d did not deploy (%s)", o.BuildID, o.Result.Status))
	} else {
		m.renderer.Upsert(KeyBuild, fmt.Sprintf("Build #%d deployed", o.BuildID))
	}

	if m.opts.Permission == PermissionAlways && !m.queue.IsPaused() {
		flushed := 0
		if m.standby.HasUnsupported() {
			flushed = m.flushStandby(ctx)
		}

		if m.rebuildPending && flushed == 0 {
			m.debounce.Arm()
		}

		m.rebuildPending = false
	}

	m.refreshStatus()

	return 0, false
}

func (m *Manager) recordBuild(ctx context.Context, o BuildOutcome) {
	if m.opts.Recorder == nil {
		return
	}

	rec := BuildRecord{
		AccountID:     m.opts.AccountID,
		Project:       m.opts.ProjectConfig.Name,
		BuildID:       o.BuildID,
		DeployID:      o.Result.DeployID,
		BuildStatus:   o.Result.BuildStatus,
		DeployStatus:  o.Result.Status,
		Deployed:      o.DeployErr == nil,
		Reprovisioned: o.Reprovisioned,
		FinishedAt:    time.Now(),
	}

	if o.DeployErr != nil {
		rec.Error = o.DeployErr.Error()
	}

	if err := m.opts.Recorder.RecordBuild(ctx, rec); err != nil {
		m.logger.Warn("failed to record build", slog.Int64("build_id", o.BuildID), slog.String("error", err.Error()))
	}
}

// refreshStatus derives the status after a build finishes.
func (m *Manager) refreshStatus() {
	switch {
	case m.awaitingApproval:
		m.setStatus(StatusManualUploadRequired)
	case m.standby.HasUnsupported() || m.queue.Len() > 0 || m.debounce.Pending():
		m.setStatus(StatusUploadPending)
	default:
		m.setStatus(StatusClean)
	}
}

func (m *Manager) setStatus(s DevModeStatus) {
	m.status.Store(int32(s))
	m.renderer.Upsert(KeyDevMode, s.Message())
}

type nopRenderer struct{}

func (nopRenderer) Upsert(string, string) {}
func (nopRenderer) Remove(string)         {}
