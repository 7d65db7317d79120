package orchestration

import (
	"sync"
	"sync/atomic"
	"time"
)

// stageTimer counts a stage down in whole seconds. Each tick is handed to
// onTick, which is expected to call tick on the orchestrator's event loop.
// Expiry calls whatever handler is currently installed.
type stageTimer struct {
	remaining atomic.Int64
	onExpire  atomic.Pointer[func()]

	mu       sync.Mutex
	ticker   Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

func newStageTimer(limit time.Duration) *stageTimer {
	t := &stageTimer{stopCh: make(chan struct{})}
	t.remaining.Store(int64(limit))
	return t
}

func (t *stageTimer) setExpiryHandler(handler func()) {
	t.onExpire.Store(&handler)
}

func (t *stageTimer) start(newTicker TickerFactory, onTick func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped.Load() {
		return
	}

	ticker := newTicker(time.Second)
	t.ticker = ticker
	go func() {
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C():
				if !onTick() {
					return
				}
			}
		}
	}()
}

// tick must run on the event loop. report receives the remaining time
// before the expiry handler runs.
func (t *stageTimer) tick(report func(remaining time.Duration)) {
	if t.stopped.Load() {
		return
	}

	remaining := time.Duration(t.remaining.Add(-int64(time.Second)))
	if remaining < 0 {
		t.remaining.Store(0)
		remaining = 0
	}
	report(remaining)
	if remaining > 0 {
		return
	}

	t.Stop()
	if handler := t.onExpire.Load(); handler != nil {
		(*handler)()
	}
}

func (t *stageTimer) Remaining() time.Duration {
	return time.Duration(t.remaining.Load())
}

func (t *stageTimer) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.stopped.Store(true)
		close(t.stopCh)
		if t.ticker != nil {
			t.ticker.Stop()
		}
	})
	return nil
}
