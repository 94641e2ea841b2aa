package channels

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Size(t *testing.T) {
	f := Frame{Topic: "a/b", Payload: []byte("hello")}

	assert.Equal(t, 3+5+FrameOverhead, f.Size())
}

func TestWindow_ReservesAndReleases(t *testing.T) {
	release := make(chan struct{})

	var (
		mu       sync.Mutex
		sent     []string
		writable []int
	)

	send := func(f Frame) error {
		<-release

		mu.Lock()
		sent = append(sent, string(f.Payload))
		mu.Unlock()

		return nil
	}

	handlers := Handlers{
		OnWritable: func(n int) {
			mu.Lock()
			writable = append(writable, n)
			mu.Unlock()
		},
	}

	w := NewWindow(50, send, handlers, nil)
	defer w.Close()

	first := Frame{Topic: "t", Payload: []byte("0123456789")} // 21 bytes
	available, err := w.Write(first)
	require.NoError(t, err)
	assert.Equal(t, 29, available)

	available, err = w.Write(first)
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	available, err = w.Write(first)
	require.ErrorIs(t, err, ErrWindowExhausted)
	assert.Equal(t, 8, available)

	close(release)

	require.Eventually(t, func() bool {
		return w.Writable() == 50
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"0123456789", "0123456789"}, sent)
	assert.Equal(t, []int{29, 50}, writable)
}

func TestWindow_SendErrorReported(t *testing.T) {
	errs := make(chan error, 1)
	boom := errors.New("boom")

	w := NewWindow(100, func(Frame) error { return boom }, Handlers{
		OnError: func(err error) { errs <- err },
	}, nil)
	defer w.Close()

	_, err := w.Write(Frame{Topic: "x"})
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("expected send error")
	}
}

func TestWindow_WriteAfterClose(t *testing.T) {
	w := NewWindow(100, func(Frame) error { return nil }, Handlers{}, nil)
	w.Close()
	w.Close()

	_, err := w.Write(Frame{Topic: "x"})
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestDialers_Get(t *testing.T) {
	d := Dialers{"memory": DialerFunc(nil)}

	_, err := d.Get("memory")
	require.NoError(t, err)

	_, err = d.Get("carrier-pigeon")
	assert.ErrorIs(t, err, ErrUnknownTransport)
}
