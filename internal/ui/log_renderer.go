package ui

import (
	"log/slog"
	"sync"
)

// LogRenderer writes status lines as log records. Repeating the current
// line for a key is suppressed.
type LogRenderer struct {
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewLogRenderer creates a renderer logging through logger.
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogRenderer{logger: logger, last: make(map[string]string)}
}

// Upsert implements devsync.StatusRenderer.
func (r *LogRenderer) Upsert(key, line string) {
	r.mu.Lock()
	if r.last[key] == line {
		r.mu.Unlock()

		return
	}

	r.last[key] = line
	r.mu.Unlock()

	r.logger.Info(line, slog.String("status", key))
}

// Remove implements devsync.StatusRenderer.
func (r *LogRenderer) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.last, key)
}
