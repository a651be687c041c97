package devsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/parthd4/hubspot-cli/internal/cmsapi"
)

// Watch error backoff.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// FsWatcher abstracts fsnotify.Watcher so tests can inject events.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher, whose channels are fields, to
// FsWatcher.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWrapper) Remove(name string) error      { return f.w.Remove(name) }
func (f fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

// Watcher turns fsnotify events under a source root into ChangeEvents. It
// watches every non-ignored directory recursively and adds watches for
// directories created while running.
type Watcher struct {
	root   string
	filter *Filter
	logger *slog.Logger

	// newWatcher creates the underlying watcher. Tests replace it.
	newWatcher func() (FsWatcher, error)

	// dirs holds watched directories so removals can be reported as
	// directory removals. Only touched by the Run goroutine.
	dirs map[string]bool
}

// NewWatcher creates a watcher rooted at root. filter may be nil.
func NewWatcher(root string, filter *Filter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:   root,
		filter: filter,
		logger: logger,
		newWatcher: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return fsnotifyWrapper{w: w}, nil
		},
		dirs: make(map[string]bool),
	}
}

// Run watches until ctx is canceled. It returns an error only if the watch
// could not be established.
func (w *Watcher) Run(ctx context.Context, out chan<- ChangeEvent) error {
	fw, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("devsync: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	w.logger.Info("watching for changes",
		slog.String("root", w.root),
		slog.Int("directories", len(w.dirs)),
	)

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			w.handle(ctx, fw, ev, out)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := sleepCtx(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)
		}
	}
}

// addTree adds watches for dir and every non-ignored directory below it.
func (w *Watcher) addTree(fw FsWatcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir {
				return fmt.Errorf("devsync: walking %s: %w", dir, walkErr)
			}

			w.logger.Warn("walk error", slog.String("path", p), slog.String("error", walkErr.Error()))

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if p != w.root && w.ignored(p, true) {
			return filepath.SkipDir
		}

		if err := fw.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("devsync: watching %s: %w", p, err)
			}

			w.logger.Warn("failed to add watch", slog.String("path", p), slog.String("error", err.Error()))

			return nil
		}

		w.dirs[p] = true

		return nil
	})
}

// handle translates one fsnotify event.
func (w *Watcher) handle(ctx context.Context, fw FsWatcher, ev fsnotify.Event, out chan<- ChangeEvent) {
	// Mode changes are not uploaded.
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Removed immediately after creation.
			w.logger.Debug("stat failed for created path",
				slog.String("path", ev.Name), slog.String("error", err.Error()))

			return
		}

		if info.IsDir() {
			if w.ignored(ev.Name, true) {
				return
			}

			if err := w.addTree(fw, ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}

			// Files written before the watch existed produce no events.
			w.scanNewDirectory(ctx, ev.Name, out)

			return
		}

		w.emit(ctx, out, ChangeAdded, ev.Name)

	case ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}

		w.emit(ctx, out, ChangeModified, ev.Name)

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if w.dirs[ev.Name] {
			w.forgetTree(fw, ev.Name)
			w.emit(ctx, out, ChangeDirectoryRemoved, ev.Name)

			return
		}

		w.emit(ctx, out, ChangeRemoved, ev.Name)
	}
}

// scanNewDirectory emits ChangeAdded for files already present in a newly
// created directory tree.
func (w *Watcher) scanNewDirectory(ctx context.Context, dir string, out chan<- ChangeEvent) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return nil
		}

		if d.IsDir() {
			if p != dir && w.ignored(p, true) {
				return filepath.SkipDir
			}

			return nil
		}

		w.emit(ctx, out, ChangeAdded, p)

		return nil
	})
}

// forgetTree drops bookkeeping for a removed directory and its children.
// fsnotify removes the kernel watches itself.
func (w *Watcher) forgetTree(fw FsWatcher, dir string) {
	prefix := dir + string(filepath.Separator)

	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			if err := fw.Remove(d); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				w.logger.Debug("remove watch failed", slog.String("path", d), slog.String("error", err.Error()))
			}

			delete(w.dirs, d)
		}
	}
}

func (w *Watcher) emit(ctx context.Context, out chan<- ChangeEvent, kind ChangeKind, abs string) {
	rel, ok := w.relPath(abs)
	if !ok {
		return
	}

	if w.filter != nil && w.filter.ShouldIgnore(rel, kind == ChangeDirectoryRemoved) {
		return
	}

	ev := ChangeEvent{Kind: kind, AbsolutePath: abs, RemotePath: rel}

	w.logger.Debug("change observed",
		slog.String("path", rel),
		slog.String("kind", kind.String()),
	)

	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) ignored(abs string, isDir bool) bool {
	if w.filter == nil {
		return false
	}

	rel, ok := w.relPath(abs)
	if !ok {
		return true
	}

	return w.filter.ShouldIgnore(rel, isDir)
}

// relPath converts an absolute path under root into a normalized remote
// path.
func (w *Watcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		w.logger.Debug("path outside watch root", slog.String("path", abs))

		return "", false
	}

	return cmsapi.NormalizeRemotePath(filepath.ToSlash(rel)), true
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
