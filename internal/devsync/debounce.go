package devsync

import (
	"sync"
	"time"
)

// stopper is the part of *time.Timer the debouncer uses.
type stopper interface {
	Stop() bool
}

// Debouncer is a single-slot timer: every Arm cancels the pending countdown
// and starts a new one. When a countdown completes, a signal is delivered on
// Fired. At most one signal is ever buffered, and re-arming discards a
// signal that has not been consumed yet.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	gen   uint64
	timer stopper
	fired chan struct{}

	// afterFunc schedules f after d. Tests replace it to fire manually.
	afterFunc func(d time.Duration, f func()) stopper
}

// NewDebouncer creates an idle debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		fired: make(chan struct{}, 1),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Arm restarts the quiet-period countdown.
func (d *Debouncer) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	d.gen++
	g := d.gen
	d.timer = d.afterFunc(d.delay, func() { d.fire(g) })
}

// Cancel stops any pending countdown and discards an unconsumed signal.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
}

// Pending reports whether a countdown is running.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.timer != nil
}

// Fired delivers one value per completed countdown.
func (d *Debouncer) Fired() <-chan struct{} {
	return d.fired
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	select {
	case <-d.fired:
	default:
	}
}

func (d *Debouncer) fire(g uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A newer Arm or a Cancel superseded this countdown.
	if g != d.gen {
		return
	}

	d.timer = nil

	select {
	case d.fired <- struct{}{}:
	default:
	}
}
