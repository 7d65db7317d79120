// Package microphone turns a raw capture device into a push-based stream of
// fixed-size encoded audio chunks.
package microphone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/pitchlive/core/audio"
)

var (
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrStopped           = errors.New("microphone capture already stopped")
)

// Device is the raw capture side of an audio backend. onAudio may be called
// from a device thread with frames of any size.
type Device interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

type Capture struct {
	device  Device
	options Options

	mu      sync.Mutex
	started bool
	stopped bool

	// listenerMu is held for the whole delivery of a chunk, so taking it in
	// Detach waits out any chunk that is mid-flight.
	listenerMu sync.Mutex
	onChunk    func(chunk []byte)
	pending    []byte

	emitted atomic.Int64
}

func New(device Device, opts ...Option) *Capture {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Capture{device: device, options: options}
}

// Start acquires the device and begins emitting chunks to onChunk. Calling
// Start on a running capture is a no-op; calling it after Stop fails.
func (c *Capture) Start(ctx context.Context, onChunk func(chunk []byte)) error {
	ctx, span := tracer.Start(ctx, "start microphone capture")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	} else if c.started {
		return nil
	}

	if c.device == nil {
		err := fmt.Errorf("%w: no input device configured", ErrDeviceUnavailable)
		span.RecordError(err)
		return err
	}

	c.listenerMu.Lock()
	c.onChunk = onChunk
	c.pending = nil
	c.listenerMu.Unlock()

	if err := c.device.StartCapture(ctx, c.receive); err != nil {
		c.Detach()
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		span.RecordError(err)
		return err
	}

	c.started = true
	logger.DebugContext(ctx, "microphone capture started",
		"chunk_size", c.options.ChunkSize,
		"sample_rate", c.options.EncodingInfo.SampleRate,
		"noise_suppression", c.options.NoiseSuppression,
		"echo_cancellation", c.options.EchoCancellation,
	)
	return nil
}

// Detach removes the chunk listener without releasing the device. After it
// returns no further chunks are delivered.
func (c *Capture) Detach() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	c.onChunk = nil
	c.pending = nil
}

// Stop detaches the listener and releases the device. It is safe to call
// repeatedly and before Start.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	c.Detach()

	if !c.started {
		return nil
	}
	if err := c.device.StopCapture(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	logger.Debug("microphone capture stopped", "chunks_emitted", c.emitted.Load())
	return nil
}

func (c *Capture) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Capture) EncodingInfo() audio.EncodingInfo {
	return c.options.EncodingInfo
}

func (c *Capture) receive(frame []byte) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	if c.onChunk == nil || len(frame) == 0 {
		return
	}

	c.pending = append(c.pending, frame...)
	for len(c.pending) >= c.options.ChunkSize {
		chunk := make([]byte, c.options.ChunkSize)
		copy(chunk, c.pending[:c.options.ChunkSize])
		c.pending = c.pending[c.options.ChunkSize:]

		c.emitted.Add(1)
		c.onChunk(chunk)
	}
}
