package devsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI records every BuildAPI call in order. Pausers and dev servers in
// tests can write into the same log through record.
type fakeAPI struct {
	mu      sync.Mutex
	log     []string
	uploads []string
	deletes []string
	lastID  int64

	provisionErr error
	queueErr     error
	cancelErr    error
	uploadErr    error
	pollErr      error
	pollStatus   string

	// pollGate, when set, blocks PollDeployStatus until closed.
	pollGate chan struct{}

	// uploadDelay slows every UploadFile call.
	uploadDelay time.Duration
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{lastID: 100, pollStatus: cmsapi.StatusSuccess}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.log = append(f.log, call)
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.log...)
}

func (f *fakeAPI) count(call string) int {
	n := 0

	for _, c := range f.calls() {
		if c == call {
			n++
		}
	}

	return n
}

func (f *fakeAPI) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.uploads...)
}

func (f *fakeAPI) ProvisionBuild(_ context.Context, _ int64, _, _ string) (cmsapi.Build, error) {
	f.record("provision")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.provisionErr != nil {
		return cmsapi.Build{}, f.provisionErr
	}

	f.lastID++

	return cmsapi.Build{BuildID: f.lastID}, nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, _ int64, _, _, remotePath string) error {
	f.mu.Lock()
	delay := f.uploadDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.record("upload")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadErr != nil {
		return f.uploadErr
	}

	f.uploads = append(f.uploads, remotePath)

	return nil
}

func (f *fakeAPI) DeleteFile(_ context.Context, _ int64, _, remotePath string) error {
	f.record("delete")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, remotePath)

	return nil
}

func (f *fakeAPI) QueueBuild(_ context.Context, _ int64, _, _ string) (cmsapi.Build, error) {
	f.record("queue")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queueErr != nil {
		return cmsapi.Build{}, f.queueErr
	}

	return cmsapi.Build{BuildID: f.lastID}, nil
}

func (f *fakeAPI) CancelStagedBuild(_ context.Context, _ int64, _ string) error {
	f.record("cancel")

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cancelErr
}

func (f *fakeAPI) PollDeployStatus(ctx context.Context, _ int64, _ string, buildID int64) (cmsapi.DeployResult, error) {
	f.record("poll")

	f.mu.Lock()
	gate := f.pollGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return cmsapi.DeployResult{BuildID: buildID}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	res := cmsapi.DeployResult{BuildID: buildID, BuildStatus: f.pollStatus, Status: f.pollStatus}
	if f.pollErr != nil {
		return res, f.pollErr
	}

	return res, nil
}

// recordingPauser logs pause and resume into the fake API's call log so
// tests can check ordering against remote calls.
type recordingPauser struct {
	api *fakeAPI

	mu     sync.Mutex
	paused bool
}

func (p *recordingPauser) Pause(context.Context) error {
	p.api.record("pause")

	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true

	return nil
}

func (p *recordingPauser) Resume() {
	p.api.record("resume")

	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = false
}

func (p *recordingPauser) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.paused
}

// fakeDevServer reports the paths in supported as applied locally.
type fakeDevServer struct {
	mu        sync.Mutex
	supported map[string]bool
	notifyErr error
	startErr  error
	executed  []string
	cleanups  int
}

func (d *fakeDevServer) Start(context.Context, DevServerConfig) error {
	return d.startErr
}

func (d *fakeDevServer) Notify(_ context.Context, ev ChangeEvent) (NotifyResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notifyErr != nil {
		return NotifyResult{}, d.notifyErr
	}

	return NotifyResult{UploadRequired: !d.supported[ev.RemotePath]}, nil
}

func (d *fakeDevServer) Execute(_ context.Context, ev ChangeEvent, _ NotifyResult) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.executed = append(d.executed, ev.RemotePath)

	return nil
}

func (d *fakeDevServer) Cleanup(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cleanups++

	return nil
}

func (d *fakeDevServer) executedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.executed...)
}

// recordingRenderer keeps the current lines and every line ever written.
type recordingRenderer struct {
	mu      sync.Mutex
	lines   map[string]string
	history map[string][]string
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{lines: map[string]string{}, history: map[string][]string{}}
}

func (r *recordingRenderer) Upsert(key, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[key] = line
	r.history[key] = append(r.history[key], line)
}

func (r *recordingRenderer) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.lines, key)
}

func (r *recordingRenderer) line(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lines[key]
}

func (r *recordingRenderer) countLine(key, line string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, l := range r.history[key] {
		if l == line {
			n++
		}
	}

	return n
}

// chanSource feeds events pushed on ch to the manager.
type chanSource struct {
	ch  chan ChangeEvent
	err error
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan ChangeEvent)}
}

func (s *chanSource) Run(ctx context.Context, out chan<- ChangeEvent) error {
	if s.err != nil {
		return s.err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.ch:
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// modified builds a modification event for a source-relative path.
func modified(rel string) ChangeEvent {
	return ChangeEvent{Kind: ChangeModified, AbsolutePath: "/project/src/" + rel, RemotePath: rel}
}

func wrapAPIErr(sentinel error) error {
	return fmt.Errorf("cmsapi: request failed: %w", sentinel)
}
