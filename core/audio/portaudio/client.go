package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/pitchlive/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/pitchlive/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

const (
	defaultReadBackoff     = 10 * time.Millisecond
	maxReadBackoff         = 500 * time.Millisecond
	defaultMaxReadFailures = 20
)

// Client is a capture-only portaudio device.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	in         []int16

	readBackoff     time.Duration
	maxReadFailures int

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	onAudioMu sync.Mutex
	onAudio   func(audio []byte)
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(audio.DefaultChannels, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize:      bufferSize,
		stream:          stream,
		in:              in,
		readBackoff:     defaultReadBackoff,
		maxReadFailures: defaultMaxReadFailures,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	c.onAudioMu.Lock()
	c.onAudio = onAudio
	c.onAudioMu.Unlock()

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.readLoop(ctx, c.stream.Read, c.stop, c.stopped)
	return nil
}

// readLoop backs off between failed reads and gives up after
// maxReadFailures consecutive failures.
func (c *Client) readLoop(ctx context.Context, read func() error, stop, stopped chan struct{}) {
	defer close(stopped)

	frame := make([]byte, len(c.in)*2)
	failures := 0
	backoff := c.readBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		if err := read(); err != nil {
			failures++
			if failures >= c.maxReadFailures {
				logger.Error("giving up on portaudio stream", "error", err, "failures", failures)
				return
			}
			if failures == 1 {
				logger.Warn("failed to read from portaudio stream", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		if failures > 0 {
			logger.Info("portaudio stream recovered", "failures", failures)
			failures = 0
			backoff = c.readBackoff
		}

		for i, sample := range c.in {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
		}

		c.onAudioMu.Lock()
		if c.onAudio != nil {
			chunk := make([]byte, len(frame))
			copy(chunk, frame)
			c.onAudio(chunk)
		}
		c.onAudioMu.Unlock()
	}
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onAudioMu.Lock()
	c.onAudio = nil
	c.onAudioMu.Unlock()

	if c.stop == nil {
		return nil
	}
	close(c.stop)
	<-c.stopped
	c.stop, c.stopped = nil, nil

	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
