package interp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AsyncRuntime is the host collaborator that owns suspension points for
// await/hold, spawn, timeout, retry and schedule. The core never blocks a
// thread on its own; every suspension crosses this boundary.
type AsyncRuntime interface {
	// Go runs fn as an independent task; a failure is reported to Logger
	// rather than propagated to the spawning statement.
	Go(fn func() error)
	// After starts fn at once and waits for it; if d elapses or ctx is done
	// first, it stops waiting and returns an error (fn is not stopped).
	After(ctx context.Context, d time.Duration, fn func() error) error
	Logger() Logger
}

// Logger is the minimal sink spawn failures and diagnostics are reported
// to; production hosts back it with their own structured logger.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// nopLogger discards everything; used when no Logger is supplied.
type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}

// defaultAsyncRuntime backs spawn and schedule (via Go) with a single
// errgroup.Group, and timeout (via After) with a plain goroutine, a timer
// and the caller's context — a minimal but real implementation of the host
// contract the core is written against.
type defaultAsyncRuntime struct {
	mu     sync.Mutex
	group  *errgroup.Group
	logger Logger
}

// NewDefaultAsyncRuntime returns a ready-to-use AsyncRuntime. It is what
// Interpreter falls back to when no host runtime is supplied, so that
// spawn/timeout/retry behave usefully even outside a hosting application.
func NewDefaultAsyncRuntime(logger Logger) AsyncRuntime {
	if logger == nil {
		logger = nopLogger{}
	}
	return &defaultAsyncRuntime{group: &errgroup.Group{}, logger: logger}
}

func (r *defaultAsyncRuntime) Go(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.group.Go(func() error {
		if err := fn(); err != nil {
			r.logger.Errorf("spawned task failed: %v", err)
		}
		return nil
	})
}

func (r *defaultAsyncRuntime) After(ctx context.Context, d time.Duration, fn func() error) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *defaultAsyncRuntime) Logger() Logger { return r.logger }

var errTimeout = &timeoutSentinel{}

type timeoutSentinel struct{}

func (*timeoutSentinel) Error() string { return "timeout" }
