package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/pitchlive/core/agentvoice"
	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/events"
	"github.com/koscakluka/pitchlive/core/playback"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
)

const (
	DefaultSettleDelay   = 300 * time.Millisecond
	DefaultGreetingDelay = 500 * time.Millisecond
	DefaultScoringDelay  = 200 * time.Millisecond
)

// AgentChannel is the live conversational agent connection.
type AgentChannel interface {
	TriggerGreeting() error
	SetMuted(muted bool)
	IsMuted() bool
	Disconnect() error
}

// RenderChannel is the avatar render connection that receives agent audio.
type RenderChannel interface {
	SendAudioChunk(b64 string) error
	EndSequence() error
	Disconnect() error
}

// FallbackPlayer plays agent audio locally when the render channel cannot.
type FallbackPlayer interface {
	PlayChunk(ctx context.Context, b64 string) (playback.Scheduled, error)
	Stop() error
}

// AgentDialer opens the agent channel. Callbacks must be invoked from the
// channel's own goroutines; the orchestrator serializes them.
type AgentDialer func(ctx context.Context, agentID string, startMuted bool, callbacks agentvoice.Callbacks) (AgentChannel, error)

// RenderInitializer opens the render channel. onError is called when an
// established render channel fails.
type RenderInitializer func(ctx context.Context, credential string, onError func(error)) (RenderChannel, error)

type PlayerFactory func() FallbackPlayer

// Ticker delivers the countdown ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(interval time.Duration) Ticker

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

func newStdTicker(interval time.Duration) Ticker {
	return stdTicker{time.NewTicker(interval)}
}

type Options struct {
	RunID   string
	Session stages.SessionData

	DialAgent        AgentDialer
	InitializeRender RenderInitializer
	NewPlayer        PlayerFactory
	Scorer           scoring.Scorer
	NewTicker        TickerFactory

	SendGate      SendGatePolicy
	SettleDelay   time.Duration
	GreetingDelay time.Duration
	ScoringDelay  time.Duration

	EventHandler events.Handler
}

type OrchestratorOption func(*Options)

func defaultOptions() Options {
	return Options{
		NewTicker:     newStdTicker,
		SendGate:      AutoMute,
		SettleDelay:   DefaultSettleDelay,
		GreetingDelay: DefaultGreetingDelay,
		ScoringDelay:  DefaultScoringDelay,
	}
}

func WithSession(runID string, session stages.SessionData) OrchestratorOption {
	return func(o *Options) {
		o.RunID = runID
		o.Session = session
	}
}

func WithAgentDialer(dialer AgentDialer) OrchestratorOption {
	return func(o *Options) { o.DialAgent = dialer }
}

func WithRenderInitializer(initializer RenderInitializer) OrchestratorOption {
	return func(o *Options) { o.InitializeRender = initializer }
}

func WithFallbackPlayer(factory PlayerFactory) OrchestratorOption {
	return func(o *Options) { o.NewPlayer = factory }
}

func WithScorer(scorer scoring.Scorer) OrchestratorOption {
	return func(o *Options) { o.Scorer = scorer }
}

func WithTicker(factory TickerFactory) OrchestratorOption {
	return func(o *Options) { o.NewTicker = factory }
}

func WithSendGate(policy SendGatePolicy) OrchestratorOption {
	return func(o *Options) { o.SendGate = policy }
}

// WithDelays overrides the settle delay used between setup steps, the delay
// before the greeting and the delay between teardown and scoring.
func WithDelays(settle, greeting, scoring time.Duration) OrchestratorOption {
	return func(o *Options) {
		o.SettleDelay = settle
		o.GreetingDelay = greeting
		o.ScoringDelay = scoring
	}
}

func WithEventHandler(handler events.Handler) OrchestratorOption {
	return func(o *Options) { o.EventHandler = handler }
}

// DialAgent adapts agentvoice.Connect, feeding it the given microphone.
func DialAgent(mic agentvoice.Microphone, opts ...agentvoice.Option) AgentDialer {
	return func(ctx context.Context, agentID string, startMuted bool, callbacks agentvoice.Callbacks) (AgentChannel, error) {
		opts := append(opts[:len(opts):len(opts)], agentvoice.WithStartMuted(startMuted))
		conn, err := agentvoice.Connect(ctx, agentID, mic, callbacks, opts...)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// InitializeAvatar adapts avatar.Initialize for the given render target.
func InitializeAvatar(targetID string, opts ...avatar.Option) RenderInitializer {
	return func(ctx context.Context, credential string, onError func(error)) (RenderChannel, error) {
		opts := append(opts[:len(opts):len(opts)], avatar.WithErrorCallback(onError))
		conn, err := avatar.Initialize(ctx, credential, targetID, opts...)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// DevicePlayer builds a fresh fallback player on the device for each stage.
func DevicePlayer(device playback.Device, opts ...playback.PlayerOption) PlayerFactory {
	return func() FallbackPlayer {
		return playback.NewDevicePlayer(device, opts...)
	}
}
