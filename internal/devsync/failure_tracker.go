package devsync

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Upload failure reporting constants.
const (
	failureThreshold = 3                // warn after this many failures of one path
	failureCooldown  = 30 * time.Minute // forget failures older than this
)

// failureRecord tracks failures for a single remote path.
type failureRecord struct {
	count   int
	lastErr string
	lastAt  time.Time
}

// failureTracker counts upload failures per remote path. Failed uploads are
// not retried; the tracker only makes them visible. Thread-safe. Success
// clears the record.
type failureTracker struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for testing
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		records: make(map[string]*failureRecord),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// recordFailure increments the failure counter for a path.
func (ft *failureTracker) recordFailure(path, errMsg string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec, ok := ft.records[path]
	if !ok {
		rec = &failureRecord{}
		ft.records[path] = rec
	}

	if ft.nowFunc().Sub(rec.lastAt) > failureCooldown {
		rec.count = 0
	}

	rec.count++
	rec.lastErr = errMsg
	rec.lastAt = ft.nowFunc()

	if rec.count == failureThreshold {
		ft.logger.Warn("upload keeps failing for path",
			slog.String("path", path),
			slog.Int("failures", rec.count),
			slog.String("last_error", errMsg),
		)
	}
}

// recordSuccess clears the failure record for a path.
func (ft *failureTracker) recordSuccess(path string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.records, path)
}

// failedPaths returns the paths with an unexpired failure, sorted.
func (ft *failureTracker) failedPaths() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.nowFunc()

	var paths []string

	for p, rec := range ft.records {
		if now.Sub(rec.lastAt) > failureCooldown {
			delete(ft.records, p)

			continue
		}

		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}
