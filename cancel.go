package completions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/clue/log"
)

// CancelManager coordinates cooperative abort of a single in-flight
// completion. It is created per request and never shared across requests.
// Callbacks registered via OnCancel run exactly once, at cancellation time,
// outside the manager lock; a callback that panics is recovered and logged
// so the remaining callbacks still run.
type CancelManager struct {
	mu        sync.Mutex
	cancelled bool
	callbacks []func()

	// monitor state; guarded by mu.
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCancelManager returns a manager ready for OnCancel registration.
func NewCancelManager() *CancelManager {
	return &CancelManager{}
}

// Cancelled reports whether Cancel has been invoked.
func (m *CancelManager) Cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// OnCancel registers fn to run when the request is cancelled. When the
// manager is already cancelled, fn runs immediately on the calling
// goroutine.
func (m *CancelManager) OnCancel(fn func()) {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		runCancelCallback(fn)
		return
	}
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// Cancel marks the request cancelled and invokes every registered callback
// exactly once. Subsequent calls are no-ops. Cancel also tears down a
// running monitor.
func (m *CancelManager) Cancel() {
	m.mu.Lock()
	if m.cancelled {
		m.mu.Unlock()
		return
	}
	m.cancelled = true
	cbs := m.callbacks
	m.callbacks = nil
	stop := m.stopCh
	m.stopCh = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	// Callbacks run outside the lock so one that re-enters the manager
	// cannot deadlock.
	for _, fn := range cbs {
		runCancelCallback(fn)
	}
}

// StartMonitor launches a background poller that evaluates predicate every
// interval and cancels the request when it returns true. Starting a second
// monitor, or starting one on an already cancelled manager, is a no-op.
func (m *CancelManager) StartMonitor(interval time.Duration, predicate func() bool) {
	if interval <= 0 || predicate == nil {
		return
	}
	m.mu.Lock()
	if m.cancelled || m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopCh = stop
	m.doneCh = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if predicate() {
					m.Cancel()
					return
				}
			}
		}
	}()
}

// StopMonitor tears down the background poller without cancelling the
// request. The stop signal wakes the poller mid-sleep; StopMonitor then
// waits up to two poll intervals (bounded by one second) for it to exit
// before abandoning it.
func (m *CancelManager) StopMonitor() {
	m.mu.Lock()
	stop := m.stopCh
	done := m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		log.Warn(context.Background(), log.KV{K: "msg", V: "completions: cancel monitor did not stop within timeout"})
	}
}

func runCancelCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(context.Background(), fmt.Errorf("cancel callback panic: %v", r),
				log.KV{K: "msg", V: "completions: cancel callback panic recovered"})
		}
	}()
	fn()
}
