package playback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/pitchlive/core/audio"
)

func TestPlayChunkSchedulesBackToBack(t *testing.T) {
	clock := &fakeClock{now: 2 * time.Second}
	sink := &fakeSink{}
	player := NewPlayer(sink, clock)

	// 100ms, 50ms and 200ms at 16kHz mono pcm16
	sizes := []int{3200, 1600, 6400}
	var starts []time.Duration
	for _, size := range sizes {
		scheduled, err := player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, size)))
		if err != nil {
			t.Fatalf("expected chunk to play, got %v", err)
		}
		starts = append(starts, scheduled.Start)
	}

	expected := []time.Duration{
		2 * time.Second,
		2*time.Second + 100*time.Millisecond,
		2*time.Second + 150*time.Millisecond,
	}
	for i := range expected {
		if starts[i] != expected[i] {
			t.Fatalf("expected chunk %d to start at %s, got %s", i, expected[i], starts[i])
		}
	}
	if got := sink.opens.Load(); got != 1 {
		t.Fatalf("expected output to be opened once, got %d", got)
	}
	if got := sink.written.Load(); got != 3200+1600+6400 {
		t.Fatalf("expected all samples written, got %d bytes", got)
	}
}

func TestPlayChunkRestartsAtClockAfterGap(t *testing.T) {
	clock := &fakeClock{}
	player := NewPlayer(&fakeSink{}, clock)

	if _, err := player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, 3200))); err != nil {
		t.Fatalf("expected chunk to play, got %v", err)
	}
	clock.now = time.Second

	scheduled, err := player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, 3200)))
	if err != nil {
		t.Fatalf("expected chunk to play, got %v", err)
	}
	if scheduled.Start != time.Second {
		t.Fatalf("expected chunk to start at the current output time, got %s", scheduled.Start)
	}
}

func TestOutputIsOpenedLazily(t *testing.T) {
	sink := &fakeSink{}
	player := NewPlayer(sink, &fakeClock{})

	if got := sink.opens.Load(); got != 0 {
		t.Fatalf("expected no output before the first chunk, got %d opens", got)
	}
	if err := player.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if got := sink.closes.Load(); got != 0 {
		t.Fatalf("expected nothing to close for an unused player, got %d", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	player := NewPlayer(sink, &fakeClock{})
	_, _ = player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, 320)))

	for range 3 {
		if err := player.Stop(); err != nil {
			t.Fatalf("expected stop to succeed, got %v", err)
		}
	}
	if got := sink.closes.Load(); got != 1 {
		t.Fatalf("expected one close, got %d", got)
	}
	if _, err := player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, 320))); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after stop, got %v", err)
	}
}

func TestPlayChunkRejectsBadPayloads(t *testing.T) {
	player := NewPlayer(&fakeSink{}, &fakeClock{})

	if _, err := player.PlayChunk(context.Background(), "%%%"); err == nil {
		t.Fatalf("expected invalid base64 to be rejected")
	}
	if _, err := player.PlayChunk(context.Background(), audio.EncodeChunk([]byte{1, 2, 3})); !errors.Is(err, audio.ErrOddPCMLength) {
		t.Fatalf("expected ErrOddPCMLength, got %v", err)
	}
}

func TestDeviceSinkUsesDeviceClock(t *testing.T) {
	device := &fakeDevice{played: 750 * time.Millisecond}
	player := NewDevicePlayer(device)

	scheduled, err := player.PlayChunk(context.Background(), audio.EncodeChunk(make([]byte, 3200)))
	if err != nil {
		t.Fatalf("expected chunk to play, got %v", err)
	}
	if scheduled.Start != 750*time.Millisecond {
		t.Fatalf("expected start at device time, got %s", scheduled.Start)
	}
	if !device.started.Load() {
		t.Fatalf("expected playback device to be started")
	}
	_ = player.Stop()
	if !device.stopped.Load() || device.cleared.Load() != 1 {
		t.Fatalf("expected device to be cleared and stopped")
	}
}

type fakeClock struct {
	now time.Duration
}

func (c *fakeClock) Now() time.Duration { return c.now }

type fakeSink struct {
	opens   atomic.Int32
	closes  atomic.Int32
	written atomic.Int64
}

func (s *fakeSink) Open(context.Context) error {
	s.opens.Add(1)
	return nil
}

func (s *fakeSink) Write(pcm []byte) error {
	s.written.Add(int64(len(pcm)))
	return nil
}

func (s *fakeSink) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeDevice struct {
	played  time.Duration
	started atomic.Bool
	stopped atomic.Bool
	cleared atomic.Int32
}

func (d *fakeDevice) StartPlayback(context.Context) error {
	d.started.Store(true)
	return nil
}

func (d *fakeDevice) StopPlayback() error {
	d.stopped.Store(true)
	return nil
}

func (d *fakeDevice) SendAudio([]byte) error        { return nil }
func (d *fakeDevice) ClearBuffer()                  { d.cleared.Add(1) }
func (d *fakeDevice) PlayedDuration() time.Duration { return d.played }
