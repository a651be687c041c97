package devsync

import "log/slog"

// StandbyBuffer holds changes that cannot be uploaded yet: the upload queue
// is paused for a build, or manual approval is pending. It preserves
// insertion order. It is owned by the manager loop and is not safe for
// concurrent use.
type StandbyBuffer struct {
	entries []ChangeEvent
	filter  *Filter
	logger  *slog.Logger
}

// NewStandbyBuffer creates an empty buffer. A nil filter admits everything.
func NewStandbyBuffer(filter *Filter, logger *slog.Logger) *StandbyBuffer {
	if logger == nil {
		logger = slog.Default()
	}

	return &StandbyBuffer{filter: filter, logger: logger}
}

// Push appends ev unless the filter rejects it, and reports whether it was
// kept. A later change for a path already in the buffer replaces the earlier
// one and moves to the end, so the newest intent for a path is uploaded once,
// after anything that preceded it.
func (b *StandbyBuffer) Push(ev ChangeEvent) bool {
	if b.filter != nil && !b.filter.Allows(ev) {
		return false
	}

	for i := range b.entries {
		if b.entries[i].AbsolutePath == ev.AbsolutePath {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)

			break
		}
	}

	b.entries = append(b.entries, ev)

	b.logger.Debug("change held in standby",
		slog.String("path", ev.RemotePath),
		slog.String("kind", ev.Kind.String()),
		slog.Bool("supported", ev.Supported),
		slog.Int("pending", len(b.entries)),
	)

	return true
}

// Flush returns the buffered changes in insertion order and empties the
// buffer. Returns nil for an empty buffer.
func (b *StandbyBuffer) Flush() []ChangeEvent {
	if len(b.entries) == 0 {
		return nil
	}

	out := b.entries
	b.entries = nil

	b.logger.Debug("standby flushed", slog.Int("changes", len(out)))

	return out
}

// Len returns the number of buffered changes.
func (b *StandbyBuffer) Len() int {
	return len(b.entries)
}

// HasUnsupported reports whether any buffered change needs a build.
func (b *StandbyBuffer) HasUnsupported() bool {
	for i := range b.entries {
		if !b.entries[i].Supported {
			return true
		}
	}

	return false
}
