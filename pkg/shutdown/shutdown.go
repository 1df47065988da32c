package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/stopwatch/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	shutdownFuncs []func(context.Context) error
	mu            sync.Mutex
	timeout       time.Duration
	doneChan      chan struct{}
	once          sync.Once
	logger        *logging.Logger
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		timeout:  timeout,
		doneChan: make(chan struct{}),
		logger:   logger,
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO).
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Trigger initiates shutdown without a signal. It is safe to call more
// than once.
func (m *Manager) Trigger() {
	m.once.Do(func() {
		close(m.doneChan)
	})
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Wait blocks until SIGINT, SIGTERM or Trigger.
func (m *Manager) Wait() {
	_ = m.WaitWithContext(context.Background())
}

// WaitWithContext blocks until SIGINT, SIGTERM, Trigger or ctx is done.
// Only the context case returns an error.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("received signal, initiating graceful shutdown", map[string]interface{}{"signal": sig.String()})
		m.Trigger()
		return nil
	case <-m.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown executes all registered shutdown functions and returns how
// many of them failed.
func (m *Manager) Shutdown() int {
	m.Trigger()

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	failed := 0
	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		if err := m.shutdownFuncs[i](ctx); err != nil {
			failed++
			m.logger.Error("shutdown step failed", map[string]interface{}{"step": i, "error": err.Error()})
		}
	}
	m.shutdownFuncs = nil

	m.logger.Info("graceful shutdown complete")
	return failed
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}

// WaitFor creates a shutdown function that polls check until it reports
// true or the shutdown deadline passes.
func WaitFor(check func() bool, pollInterval time.Duration, resourceName string) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			if check() {
				return nil
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("timeout waiting for %s: %w", resourceName, ctx.Err())
			case <-ticker.C:
			}
		}
	}
}
