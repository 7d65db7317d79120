package portaudio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(maxFailures int) *Client {
	return &Client{
		in:              []int16{1, -1},
		readBackoff:     time.Millisecond,
		maxReadFailures: maxFailures,
	}
}

func TestReadLoopGivesUpAfterRepeatedFailures(t *testing.T) {
	c := newTestClient(5)
	var reads atomic.Int32
	read := func() error {
		reads.Add(1)
		return errors.New("input overflowed")
	}

	stop, stopped := make(chan struct{}), make(chan struct{})
	go c.readLoop(context.Background(), read, stop, stopped)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		close(stop)
		t.Fatalf("expected read loop to give up")
	}
	if got := reads.Load(); got != 5 {
		t.Fatalf("expected 5 reads before giving up, got %d", got)
	}
}

func TestReadLoopRecoversAfterTransientFailure(t *testing.T) {
	c := newTestClient(3)
	var reads atomic.Int32
	read := func() error {
		// Two failures, one success, repeated: never three in a row.
		if n := reads.Add(1); n%3 != 0 {
			return errors.New("input overflowed")
		}
		return nil
	}

	var chunks atomic.Int32
	c.onAudio = func(audio []byte) {
		if len(audio) != 4 {
			t.Errorf("expected 4 byte chunk, got %d", len(audio))
		}
		chunks.Add(1)
	}

	stop, stopped := make(chan struct{}), make(chan struct{})
	go c.readLoop(context.Background(), read, stop, stopped)

	deadline := time.Now().Add(2 * time.Second)
	for chunks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-stopped

	if got := chunks.Load(); got < 3 {
		t.Fatalf("expected capture to keep delivering after failures, got %d chunks", got)
	}
}

func TestReadLoopStopsDuringBackoff(t *testing.T) {
	c := newTestClient(100)
	c.readBackoff = time.Hour

	stop, stopped := make(chan struct{}), make(chan struct{})
	go c.readLoop(context.Background(), func() error { return errors.New("device lost") }, stop, stopped)

	time.Sleep(10 * time.Millisecond)
	close(stop)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected stop to interrupt the backoff")
	}
}
