package orchestration

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStageTimerCountsDownAndExpiresOnce(t *testing.T) {
	timer := newStageTimer(3 * time.Second)

	var first, second atomic.Int32
	timer.setExpiryHandler(func() { first.Add(1) })
	// the latest handler wins
	timer.setExpiryHandler(func() { second.Add(1) })

	var reported []time.Duration
	report := func(remaining time.Duration) { reported = append(reported, remaining) }
	for i := 0; i < 5; i++ {
		timer.tick(report)
	}

	if len(reported) != 3 || reported[0] != 2*time.Second || reported[2] != 0 {
		t.Fatalf("expected 2s, 1s, 0s, got %v", reported)
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("expected only the latest handler to run once, got %d and %d", first.Load(), second.Load())
	}
	if timer.Remaining() != 0 {
		t.Fatalf("expected nothing remaining, got %v", timer.Remaining())
	}
}

func TestStageTimerStopBeforeStart(t *testing.T) {
	timer := newStageTimer(time.Minute)
	if err := timer.Stop(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	created := false
	timer.start(func(time.Duration) Ticker {
		created = true
		return &fakeTicker{ch: make(chan time.Time)}
	}, func() bool { return true })
	if created {
		t.Fatalf("expected a stopped timer not to create a ticker")
	}

	timer.tick(func(time.Duration) { t.Fatalf("expected no ticks after stop") })
}
