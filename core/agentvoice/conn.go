// Package agentvoice streams microphone audio to a conversational speech
// agent over a websocket and reports what the agent says and hears.
package agentvoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/pitchlive/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrConnectTimeout = errors.New("agent connection timed out")
	ErrConnectError   = errors.New("agent connection failed")
	ErrNotConnected   = errors.New("agent connection closed")
)

// Microphone is the capture source streamed to the agent.
type Microphone interface {
	Start(ctx context.Context, onChunk func([]byte)) error
	Detach()
	Stop() error
}

type Conn struct {
	ws        *websocket.Conn
	mic       Microphone
	callbacks Callbacks
	options   Options

	writeMu sync.Mutex

	muted        atomic.Bool
	disconnected atomic.Bool
	sentChunks   atomic.Int64

	disconnectOnce sync.Once
	micOnce        sync.Once
	closeOnce      sync.Once
	micErr         error
	closeErr       error
	done           chan struct{}

	chunksSent metric.Int64Counter
}

// Connect opens the agent conversation and starts the microphone. It returns
// once both are running; OnReady has fired by then. Callbacks only start
// arriving after OnReady.
func Connect(ctx context.Context, agentID string, mic Microphone, callbacks Callbacks, opts ...Option) (*Conn, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "connect agent")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	if agentID == "" {
		err := fmt.Errorf("%w: agent id is required", ErrConnectError)
		span.RecordError(err)
		return nil, err
	}

	wsURL, err := buildURL(options.BaseURL, agentID)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnectError, err)
		span.RecordError(err)
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, options.ConnectTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(connectCtx, wsURL, options.Header)
	if err != nil {
		err = connectFailure(connectCtx, err)
		span.RecordError(err)
		return nil, err
	}

	c := &Conn{
		ws:        ws,
		mic:       mic,
		callbacks: callbacks,
		options:   options,
		done:      make(chan struct{}),
	}
	c.muted.Store(options.StartMuted)
	if c.chunksSent, err = meter.Int64Counter("agentvoice.user_audio_chunks",
		metric.WithDescription("Microphone chunks forwarded to the agent"),
	); err != nil {
		logger.Warn("failed to create chunk counter", "error", err)
	}

	if mic == nil {
		_ = ws.Close()
		err := fmt.Errorf("%w: no microphone", ErrConnectError)
		span.RecordError(err)
		return nil, err
	}
	if err := mic.Start(connectCtx, c.forwardMicChunk); err != nil {
		_ = mic.Stop()
		_ = ws.Close()
		if isTimeout(connectCtx, err) {
			err = fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		span.RecordError(err)
		return nil, err
	}
	if connectCtx.Err() != nil {
		_ = mic.Stop()
		_ = ws.Close()
		err := connectFailure(connectCtx, connectCtx.Err())
		span.RecordError(err)
		return nil, err
	}

	logger.Info("agent connected", "agent_id", agentID)
	if c.callbacks.OnReady != nil {
		c.callbacks.OnReady()
	}
	go c.readLoop()
	return c, nil
}

// connectFailure classifies a dial error. The dialer applies the context
// deadline to the socket, so a stalled handshake can surface as a socket
// timeout before the context itself reports expiry.
func connectFailure(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectError, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return true
	}
	return false
}

func buildURL(base, agentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid agent base url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) forwardMicChunk(chunk []byte) {
	if err := c.SendAudioChunk(chunk); err != nil {
		logger.Debug("failed to forward microphone chunk", "error", err)
	}
}

// SendAudioChunk sends one raw PCM chunk to the agent. Chunks sent while
// muted or after disconnect are dropped, never queued.
func (c *Conn) SendAudioChunk(pcm []byte) error {
	if c.muted.Load() || c.disconnected.Load() {
		return nil
	}

	if err := c.writeJSON(userAudioMessage{UserAudioChunk: audio.EncodeChunk(pcm)}); err != nil {
		return err
	}

	n := c.sentChunks.Add(1)
	if c.chunksSent != nil {
		c.chunksSent.Add(context.Background(), 1)
	}
	if n%50 == 1 {
		logger.Debug("sending user audio", "chunk", n, "bytes", len(pcm))
	}
	return nil
}

func (c *Conn) SendUserMessage(text string) error {
	if c.disconnected.Load() {
		return ErrNotConnected
	}
	return c.writeJSON(userMessage{Type: messageTypeUserMessage, Text: text})
}

func (c *Conn) SendUserActivity() error {
	if c.disconnected.Load() {
		return ErrNotConnected
	}
	return c.writeJSON(userMessage{Type: messageTypeUserActivity})
}

// TriggerGreeting asks the agent to open the conversation.
func (c *Conn) TriggerGreeting() error {
	return c.SendUserMessage(c.options.GreetingPrompt)
}

func (c *Conn) SetMuted(muted bool) {
	if c.muted.Swap(muted) != muted {
		logger.Debug("microphone mute changed", "muted", muted)
	}
}

func (c *Conn) IsMuted() bool {
	return c.muted.Load()
}

// SentChunks is the number of microphone chunks that reached the agent.
func (c *Conn) SentChunks() int64 {
	return c.sentChunks.Load()
}

// Disconnect detaches and stops the microphone, then closes the connection
// normally. Only the first call does anything.
func (c *Conn) Disconnect() error {
	var err error
	c.disconnectOnce.Do(func() {
		c.disconnected.Store(true)
		err = errors.Join(c.stopMic(), c.closeTransport())
		logger.Info("agent disconnected")
	})
	return err
}

// Done is closed once the read loop has exited and OnDisconnect has run.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) stopMic() error {
	c.micOnce.Do(func() {
		c.mic.Detach()
		if err := c.mic.Stop(); err != nil {
			c.micErr = fmt.Errorf("failed to stop microphone: %w", err)
		}
	})
	return c.micErr
}

func (c *Conn) closeTransport() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReasonStageEnded)
		writeErr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.options.WriteTimeout))
		c.writeMu.Unlock()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			logger.Debug("failed to send close frame", "error", writeErr)
		}
		if err := c.ws.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close agent connection: %w", err)
		}
	})
	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer func() {
		c.disconnected.Store(true)
		if err := c.stopMic(); err != nil {
			logger.Warn("failed to stop microphone after agent disconnect", "error", err)
		}
		_ = c.closeTransport()
		if c.callbacks.OnDisconnect != nil {
			c.callbacks.OnDisconnect()
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case c.disconnected.Load():
			case errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure:
				logger.Info("agent closed the connection", "reason", closeErr.Text)
			default:
				logger.Warn("agent connection lost", "error", err)
				if c.callbacks.OnError != nil {
					c.callbacks.OnError(fmt.Errorf("agent connection lost: %w", err))
				}
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("failed to parse agent message", "error", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Conn) handle(msg inboundMessage) {
	switch msg.Type {
	case messageTypeConversationInit:
		if msg.ConversationInit != nil && msg.ConversationInit.ConversationID != "" {
			logger.Info("conversation started", "conversation_id", msg.ConversationInit.ConversationID)
			if c.callbacks.OnConversationInit != nil {
				c.callbacks.OnConversationInit(msg.ConversationInit.ConversationID)
			}
		}

	case messageTypeAudio:
		if msg.Audio == nil || msg.Audio.AudioBase64 == "" {
			return
		}
		chunk := Chunk{Audio: msg.Audio.AudioBase64}
		if msg.Audio.EventID != nil {
			chunk.EventID = *msg.Audio.EventID
		}
		if c.callbacks.OnAudio != nil {
			c.callbacks.OnAudio(chunk)
		}

	case messageTypeAgentResponse:
		if msg.AgentResponse == nil || msg.AgentResponse.AgentResponse == "" {
			return
		}
		if c.callbacks.OnAgentResponse != nil {
			c.callbacks.OnAgentResponse(msg.AgentResponse.AgentResponse)
		}

	case messageTypeAgentCorrection:
		if msg.AgentCorrection == nil || msg.AgentCorrection.Corrected == "" {
			return
		}
		logger.Debug("agent response corrected", "corrected", msg.AgentCorrection.Corrected)
		if c.callbacks.OnAgentResponseCorrection != nil {
			c.callbacks.OnAgentResponseCorrection(msg.AgentCorrection.Original, msg.AgentCorrection.Corrected)
		}

	case messageTypeUserTranscript:
		if msg.UserTranscription == nil || msg.UserTranscription.UserTranscript == "" {
			return
		}
		if c.callbacks.OnUserTranscript != nil {
			c.callbacks.OnUserTranscript(msg.UserTranscription.UserTranscript)
		}

	case messageTypeInterruption:
		eventID := 0
		if msg.Interruption != nil && msg.Interruption.EventID != nil {
			eventID = *msg.Interruption.EventID
		}
		if c.callbacks.OnInterrupt != nil {
			c.callbacks.OnInterrupt(eventID)
		}

	case messageTypePing:
		if msg.Ping == nil || msg.Ping.EventID == nil {
			return
		}
		if err := c.writeJSON(pongMessage{Type: messageTypePong, EventID: *msg.Ping.EventID}); err != nil {
			logger.Warn("failed to answer ping", "event_id", *msg.Ping.EventID, "error", err)
		}

	case messageTypeTentativeResponse, messageTypeVADScore:

	default:
		logger.Debug("unknown agent message type", "type", msg.Type)
	}
}

func (c *Conn) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
	if err := c.ws.WriteJSON(payload); err != nil {
		return fmt.Errorf("failed to write agent message: %w", err)
	}
	return nil
}
