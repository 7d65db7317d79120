// Package playback plays agent audio locally when the avatar render channel
// cannot take it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/pitchlive/core/audio"
	"go.opentelemetry.io/otel/metric"
)

var ErrStopped = errors.New("player stopped")

// Clock reports the current position of the audio output.
type Clock interface {
	Now() time.Duration
}

// Sink is the audio output. Open is called lazily before the first write.
type Sink interface {
	Open(ctx context.Context) error
	Write(pcm []byte) error
	Close() error
}

// Scheduled describes where a chunk was placed on the output timeline.
type Scheduled struct {
	Start    time.Duration
	Duration time.Duration
}

func (s Scheduled) End() time.Duration {
	return s.Start + s.Duration
}

type Player struct {
	sink         Sink
	clock        Clock
	encodingInfo audio.EncodingInfo

	mu      sync.Mutex
	opened  bool
	stopped bool
	nextEnd time.Duration
	chunks  int

	playedChunks metric.Int64Counter
}

type PlayerOption func(*Player)

func WithEncodingInfo(info audio.EncodingInfo) PlayerOption {
	return func(p *Player) {
		p.encodingInfo = info
	}
}

func NewPlayer(sink Sink, clock Clock, opts ...PlayerOption) *Player {
	p := &Player{
		sink:         sink,
		clock:        clock,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	if p.playedChunks, err = meter.Int64Counter("playback.fallback_chunks",
		metric.WithDescription("Agent audio chunks played on the local fallback output"),
	); err != nil {
		logger.Warn("failed to create fallback chunk counter", "error", err)
	}
	return p
}

// PlayChunk decodes a base64 PCM16LE chunk and queues it directly after the
// previously scheduled chunk, or at the current output time if the output
// has already caught up.
func (p *Player) PlayChunk(ctx context.Context, b64 string) (Scheduled, error) {
	pcm, err := audio.DecodeChunk(b64)
	if err != nil {
		return Scheduled{}, err
	}
	if len(pcm)%2 != 0 {
		return Scheduled{}, audio.ErrOddPCMLength
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return Scheduled{}, ErrStopped
	}

	if !p.opened {
		if err := p.sink.Open(ctx); err != nil {
			return Scheduled{}, fmt.Errorf("failed to open audio output: %w", err)
		}
		p.opened = true
	}

	scheduled := Scheduled{
		Start:    max(p.clock.Now(), p.nextEnd),
		Duration: p.encodingInfo.Duration(pcm),
	}
	if err := p.sink.Write(pcm); err != nil {
		return Scheduled{}, fmt.Errorf("failed to write audio: %w", err)
	}
	p.nextEnd = scheduled.End()

	p.chunks++
	if p.playedChunks != nil {
		p.playedChunks.Add(ctx, 1)
	}
	if p.chunks%20 == 0 {
		logger.Debug("fallback playback", "chunks", p.chunks, "next_end", p.nextEnd)
	}
	return scheduled, nil
}

// Stop releases the output and forgets the schedule. It is safe to call
// more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	p.nextEnd = 0

	if !p.opened {
		return nil
	}
	p.opened = false
	return p.sink.Close()
}
