package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunPendingInPostingOrder(t *testing.T) {
	l := New()

	var order []int

	l.Post(func() { order = append(order, 1) })
	l.Post(func() {
		order = append(order, 2)
		l.Post(func() { order = append(order, 4) })
	})
	l.Post(func() { order = append(order, 3) })

	assert.Equal(t, 4, l.RunPending())
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	assert.Zero(t, l.RunPending())
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := New()
	ran := false

	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })

	assert.Equal(t, 2, l.RunPending())
	assert.True(t, ran)
}

func TestLoop_CallAndClose(t *testing.T) {
	l := New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- l.Run(ctx) }()

	var value atomic.Int32

	require.NoError(t, l.Call(ctx, func() { value.Store(7) }))
	assert.Equal(t, int32(7), value.Load())

	l.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(ctx, func() {}), ErrClosed)
}

func TestLoop_CallHonorsContext(t *testing.T) {
	l := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Call(ctx, func() {}), context.Canceled)
}

// advance moves the fake clock and runs the tasks posted by expired timers.
// Expired clockwork timers post from their own goroutines.
func advance(t *testing.T, l *Loop, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()

	clock.Advance(d)

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()

		return len(l.pending) > 0
	}, time.Second, time.Millisecond)

	l.RunPending()
}

func TestTimer_Timeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(WithClock(clock))
	fired := 0

	timer := l.SetTimeout(time.Second, func() { fired++ })
	assert.True(t, timer.Active())

	clock.Advance(999 * time.Millisecond)
	l.RunPending()
	assert.Zero(t, fired)

	advance(t, l, clock, time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.False(t, timer.Active())

	clock.Advance(time.Hour)
	l.RunPending()
	assert.Equal(t, 1, fired)
}

func TestTimer_ZeroDelayRunsNextTurn(t *testing.T) {
	l := New(WithClock(clockwork.NewFakeClock()))
	fired := false

	l.SetTimeout(0, func() { fired = true })
	assert.False(t, fired)

	l.RunPending()
	assert.True(t, fired)
}

func TestTimer_IntervalAndClear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(WithClock(clock))
	fired := 0

	timer := l.SetInterval(time.Second, func() { fired++ })

	for range 3 {
		advance(t, l, clock, time.Second)
	}

	assert.Equal(t, 3, fired)

	timer.Clear()
	timer.Clear()

	clock.Advance(time.Second)
	l.RunPending()
	assert.Equal(t, 3, fired)

	var none *Timer
	none.Clear()
	assert.False(t, none.Active())
}

func TestTimer_ClearAfterExpiryBeforeRun(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(WithClock(clock))
	fired := false

	timer := l.SetTimeout(time.Second, func() { fired = true })

	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()

		return len(l.pending) > 0
	}, time.Second, time.Millisecond)

	timer.Clear()
	l.RunPending()

	assert.False(t, fired)
}
