package shutdown

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/psantana5/stopwatch/pkg/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.DEBUG, false)
	l.SetOutput(io.Discard)
	return l
}

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, quietLogger())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		m.Register(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	assert.Equal(t, 0, m.Shutdown())
	assert.Equal(t, []int{2, 1, 0}, order)

	select {
	case <-m.Done():
	default:
		t.Fatal("Done must be closed after Shutdown")
	}
}

func TestShutdownCountsFailures(t *testing.T) {
	m := New(time.Second, quietLogger())
	m.Register(func(context.Context) error { return errors.New("boom") })
	m.Register(CloseResource(closerFunc(func() error { return nil }), "file"))

	assert.Equal(t, 1, m.Shutdown())
}

func TestTriggerUnblocksWait(t *testing.T) {
	m := New(time.Second, quietLogger())

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	m.Trigger()
	m.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Trigger")
	}
}

func TestWaitWithContextCancelled(t *testing.T) {
	m := New(time.Second, quietLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := m.WaitWithContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForTimesOut(t *testing.T) {
	m := New(20*time.Millisecond, quietLogger())
	m.Register(WaitFor(func() bool { return false }, time.Millisecond, "runs"))
	assert.Equal(t, 1, m.Shutdown())
}

func TestWaitForCompletes(t *testing.T) {
	var ready atomic.Bool
	fn := WaitFor(ready.Load, time.Millisecond, "runs")

	go func() {
		time.Sleep(5 * time.Millisecond)
		ready.Store(true)
	}()
	assert.NoError(t, fn(context.Background()))
}

func TestStopHTTPServer(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0"}
	fn := StopHTTPServer(srv, "metrics")
	require.NoError(t, fn(context.Background()))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
