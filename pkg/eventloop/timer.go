package eventloop

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a one-shot or repeating callback scheduled on the loop. Its methods
// must be called from the loop goroutine.
type Timer struct {
	loop    *Loop
	repeat  time.Duration
	fn      func()
	timer   clockwork.Timer
	cleared bool
}

// SetTimer runs fn on the loop after delay and then every repeat, if repeat is
// positive. A zero delay schedules fn for the next loop turn.
func (l *Loop) SetTimer(delay, repeat time.Duration, fn func()) *Timer {
	t := &Timer{loop: l, repeat: repeat, fn: fn}
	t.arm(delay)

	return t
}

// SetTimeout runs fn once after delay.
func (l *Loop) SetTimeout(delay time.Duration, fn func()) *Timer {
	return l.SetTimer(delay, 0, fn)
}

// SetInterval runs fn every interval.
func (l *Loop) SetInterval(interval time.Duration, fn func()) *Timer {
	return l.SetTimer(interval, interval, fn)
}

// Clear cancels the timer. Clearing a nil or already cleared timer is a no-op.
func (t *Timer) Clear() {
	if t == nil || t.cleared {
		return
	}

	t.cleared = true

	if t.timer != nil {
		t.timer.Stop()
	}
}

// Active reports whether the timer can still fire.
func (t *Timer) Active() bool {
	return t != nil && !t.cleared
}

func (t *Timer) arm(delay time.Duration) {
	if delay <= 0 {
		t.timer = nil
		t.loop.Post(t.fire)

		return
	}

	t.timer = t.loop.clock.AfterFunc(delay, func() {
		t.loop.Post(t.fire)
	})
}

func (t *Timer) fire() {
	if t.cleared {
		return
	}

	if t.repeat > 0 {
		t.arm(t.repeat)
	} else {
		t.cleared = true
	}

	t.fn()
}
