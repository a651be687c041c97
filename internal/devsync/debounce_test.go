package devsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	f       func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	ft.stopped = true

	return true
}

// manualDebouncer returns a debouncer whose countdowns only complete when the
// test calls the recorded timer's f.
func manualDebouncer() (*Debouncer, *[]*fakeTimer) {
	d := NewDebouncer(time.Hour)
	timers := &[]*fakeTimer{}
	d.afterFunc = func(_ time.Duration, f func()) stopper {
		ft := &fakeTimer{f: f}
		*timers = append(*timers, ft)

		return ft
	}

	return d, timers
}

func fired(d *Debouncer) bool {
	select {
	case <-d.Fired():
		return true
	default:
		return false
	}
}

func TestDebouncer_RearmRestartsCountdown(t *testing.T) {
	t.Parallel()

	d, timers := manualDebouncer()
	d.Arm()
	d.Arm()
	d.Arm()

	require.Len(t, *timers, 3)
	assert.True(t, (*timers)[0].stopped)
	assert.True(t, (*timers)[1].stopped)
	assert.False(t, (*timers)[2].stopped)
	assert.True(t, d.Pending())

	// A superseded countdown that still runs its callback is ignored.
	(*timers)[0].f()
	assert.False(t, fired(d))

	(*timers)[2].f()
	assert.True(t, fired(d))
	assert.False(t, fired(d))
	assert.False(t, d.Pending())
}

func TestDebouncer_CancelDiscards(t *testing.T) {
	t.Parallel()

	d, timers := manualDebouncer()
	d.Arm()
	d.Cancel()

	(*timers)[0].f()
	assert.False(t, fired(d))
	assert.False(t, d.Pending())
}

func TestDebouncer_ArmDrainsUnconsumedSignal(t *testing.T) {
	t.Parallel()

	d, timers := manualDebouncer()
	d.Arm()
	(*timers)[0].f()

	d.Arm()
	assert.False(t, fired(d))

	(*timers)[1].f()
	assert.True(t, fired(d))
}

func TestDebouncer_RealTimer(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(10 * time.Millisecond)
	d.Arm()

	select {
	case <-d.Fired():
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}
}
