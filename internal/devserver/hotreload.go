// Package devserver provides local dev server bridges for devsync: an
// in-process hot-reload bridge and a websocket client for an external dev
// server process.
package devserver

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/parthd4/hubspot-cli/internal/devsync"
)

// DefaultHotReloadExtensions are the file types HotReload applies without a
// build when no list is given.
var DefaultHotReloadExtensions = []string{".css", ".scss", ".js", ".jsx", ".ts", ".tsx", ".html", ".hubl"}

// reloadBuffer is the per-subscriber channel capacity. Slow subscribers miss
// reloads rather than block the dev loop.
const reloadBuffer = 16

// Reload is one change applied by HotReload.
type Reload struct {
	Path string
	Kind devsync.ChangeKind
}

// HotReload treats additions and modifications of hot-reloadable files under
// the configured component directories as supported. Everything else, and
// every deletion, requires an upload.
type HotReload struct {
	dirs   []string
	exts   map[string]bool
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	applied []string
	subs    map[int]chan Reload
	nextSub int
}

// NewHotReload creates a bridge for dirs (relative to the source root).
// Empty exts uses DefaultHotReloadExtensions.
func NewHotReload(dirs, exts []string, logger *slog.Logger) *HotReload {
	if logger == nil {
		logger = slog.Default()
	}

	if len(exts) == 0 {
		exts = DefaultHotReloadExtensions
	}

	h := &HotReload{
		exts:   make(map[string]bool, len(exts)),
		logger: logger,
		subs:   make(map[int]chan Reload),
	}

	for _, d := range dirs {
		d = strings.Trim(path.Clean(strings.ReplaceAll(d, "\\", "/")), "/")
		if d == "." {
			d = ""
		}

		h.dirs = append(h.dirs, d)
	}

	for _, e := range exts {
		h.exts[strings.ToLower(e)] = true
	}

	return h
}

// Start implements devsync.DevServer.
func (h *HotReload) Start(_ context.Context, cfg devsync.DevServerConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.started = true

	h.logger.Info("hot reload ready",
		slog.String("project", cfg.ProjectName),
		slog.Any("dirs", h.dirs),
	)

	return nil
}

// Notify implements devsync.DevServer.
func (h *HotReload) Notify(_ context.Context, ev devsync.ChangeEvent) (devsync.NotifyResult, error) {
	return devsync.NotifyResult{UploadRequired: !h.supports(ev)}, nil
}

func (h *HotReload) supports(ev devsync.ChangeEvent) bool {
	if ev.Kind != devsync.ChangeAdded && ev.Kind != devsync.ChangeModified {
		return false
	}

	if !h.exts[strings.ToLower(path.Ext(ev.RemotePath))] {
		return false
	}

	for _, d := range h.dirs {
		if d == "" || strings.HasPrefix(ev.RemotePath, d+"/") {
			return true
		}
	}

	return false
}

// Execute records the change and hands it to every subscriber.
func (h *HotReload) Execute(_ context.Context, ev devsync.ChangeEvent, _ devsync.NotifyResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.applied = append(h.applied, ev.RemotePath)

	r := Reload{Path: ev.RemotePath, Kind: ev.Kind}
	for id, ch := range h.subs {
		select {
		case ch <- r:
		default:
			h.logger.Debug("reload subscriber is behind, dropping", slog.Int("subscriber", id))
		}
	}

	return nil
}

// Cleanup closes all subscriptions.
func (h *HotReload) Cleanup(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}

	h.started = false

	return nil
}

// Subscribe returns a channel of applied reloads and a function that ends
// the subscription. The channel is closed by the returned function or by
// Cleanup.
func (h *HotReload) Subscribe() (<-chan Reload, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++

	ch := make(chan Reload, reloadBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if c, ok := h.subs[id]; ok {
			close(c)
			delete(h.subs, id)
		}
	}
}

// Applied returns the paths applied so far, oldest first.
func (h *HotReload) Applied() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.applied...)
}
