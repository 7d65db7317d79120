// Package avatar drives a lip-synced avatar from agent audio. Agent speech
// is passed through to a render service over a websocket and the rendered
// output is shown on a registered surface.
package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/pitchlive/core/audio"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultRenderURL = "ws://127.0.0.1:8766/v1/render"

var (
	ErrRenderTargetNotFound = errors.New("render target not found")
	ErrMissingCredential    = errors.New("render credential is required")
	ErrClosed               = errors.New("render channel closed")
	ErrSendFailed           = errors.New("render send failed")
)

type audioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type initMessage struct {
	Type              string      `json:"type"`
	DisableInputAudio bool        `json:"disable_input_audio"`
	Audio             audioFormat `json:"audio"`
}

type agentAudioMessage struct {
	Type     string `json:"type"`
	Audio    string `json:"audio"`
	Sequence int    `json:"sequence"`
}

type controlMessage struct {
	Type string `json:"type"`
}

type inboundMessage struct {
	Type    string      `json:"type"`
	State   RenderState `json:"state,omitempty"`
	Message string      `json:"message,omitempty"`
	Frame
}

type Options struct {
	URL          string
	Surfaces     *Surfaces
	EncodingInfo audio.EncodingInfo
	WriteTimeout time.Duration
	OnError      func(err error)
}

type Option func(*Options)

func WithURL(url string) Option {
	return func(o *Options) {
		o.URL = url
	}
}

func WithSurfaces(surfaces *Surfaces) Option {
	return func(o *Options) {
		o.Surfaces = surfaces
	}
}

func WithEncodingInfo(info audio.EncodingInfo) Option {
	return func(o *Options) {
		o.EncodingInfo = info
	}
}

// WithErrorCallback is notified of errors reported by the render service.
func WithErrorCallback(callback func(err error)) Option {
	return func(o *Options) {
		o.OnError = callback
	}
}

type Conn struct {
	ws      *websocket.Conn
	surface Surface
	options Options

	writeMu  sync.Mutex
	sequence int
	speaking bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Initialize connects the render service to the surface registered under
// targetID and configures it for audio passthrough.
func Initialize(ctx context.Context, credential, targetID string, opts ...Option) (*Conn, error) {
	options := Options{
		URL:          DefaultRenderURL,
		Surfaces:     DefaultSurfaces,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		WriteTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "initialize avatar")
	defer span.End()
	span.SetAttributes(attribute.String("render.target", targetID))

	surface, ok := options.Surfaces.Lookup(targetID)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrRenderTargetNotFound, targetID)
		span.RecordError(err)
		return nil, err
	}
	if credential == "" {
		span.RecordError(ErrMissingCredential)
		return nil, ErrMissingCredential
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, options.URL, http.Header{
		"Authorization": {"Bearer " + credential},
	})
	if err != nil {
		err = fmt.Errorf("failed to open render connection: %w", err)
		span.RecordError(err)
		return nil, err
	}

	c := &Conn{
		ws:      ws,
		surface: surface,
		options: options,
		done:    make(chan struct{}),
	}

	if err := c.writeJSON(initMessage{
		Type:              "init",
		DisableInputAudio: true,
		Audio: audioFormat{
			Encoding:   options.EncodingInfo.WireName(),
			SampleRate: options.EncodingInfo.SampleRate,
			Channels:   options.EncodingInfo.Channels,
		},
	}); err != nil {
		_ = ws.Close()
		err = fmt.Errorf("failed to initialize render stream: %w", err)
		span.RecordError(err)
		return nil, err
	}

	surface.SetRenderState(RenderIdle)
	go c.readLoop()
	logger.Info("avatar initialized", "target", targetID)
	return c, nil
}

// SendAudioChunk passes one base64 PCM chunk to the render service for
// lip-sync. Chunks are numbered in send order.
func (c *Conn) SendAudioChunk(b64 string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	c.sequence++
	sequence := c.sequence
	c.writeMu.Unlock()

	if err := c.writeJSON(agentAudioMessage{Type: "agent_audio", Audio: b64, Sequence: sequence}); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.writeMu.Lock()
	startSpeaking := !c.speaking
	c.speaking = true
	c.writeMu.Unlock()
	if startSpeaking {
		c.surface.SetRenderState(RenderSpeaking)
	}
	if sequence%20 == 1 {
		logger.Debug("sending audio for lip-sync", "chunk", sequence, "size", len(b64))
	}
	return nil
}

// EndSequence marks the end of the current utterance.
func (c *Conn) EndSequence() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	c.speaking = false
	c.writeMu.Unlock()

	c.surface.SetRenderState(RenderIdle)
	if err := c.writeJSON(controlMessage{Type: "agent_audio_end"}); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Disconnect closes the render connection. Calling it again is a no-op.
func (c *Conn) Disconnect() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.options.WriteTimeout))
		c.writeMu.Unlock()
		if err := c.ws.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close render connection: %w", err)
		}
		c.surface.SetRenderState(RenderIdle)
		logger.Info("avatar disconnected")
	})
	return c.closeErr
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.closed.Store(true)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("render connection lost", "error", err)
				c.reportError(fmt.Errorf("render connection lost: %w", err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("failed to parse render message", "error", err)
			continue
		}

		switch msg.Type {
		case "render_state":
			if msg.State == RenderIdle || msg.State == RenderSpeaking {
				c.surface.SetRenderState(msg.State)
			}
		case "frame":
			c.surface.RenderFrame(msg.Frame)
		case "error":
			c.reportError(fmt.Errorf("render service: %s", msg.Message))
		default:
			logger.Debug("unknown render message type", "type", msg.Type)
		}
	}
}

func (c *Conn) reportError(err error) {
	if c.options.OnError != nil {
		c.options.OnError(err)
	}
}

func (c *Conn) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
	return c.ws.WriteJSON(payload)
}
