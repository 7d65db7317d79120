// Package orchestration runs one live stage: it wires the agent channel, the
// avatar render channel and the local fallback player together, keeps the
// session status and transcript, counts the stage down and scores it once it
// ends.
//
// Every channel callback, timer tick and user action is applied on a single
// event loop, so handlers never run concurrently with each other or with
// teardown.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/pitchlive/core/agentvoice"
	"github.com/koscakluka/pitchlive/core/events"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/core/transcript"
	"github.com/koscakluka/pitchlive/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrSessionNotInitialized = errors.New("Session not properly initialized. Please go back and try again.")
	ErrAlreadyStarted        = errors.New("stage already started")
	ErrNotStarted            = errors.New("stage not started")
	ErrStageCancelled        = errors.New("stage cancelled")
	// ErrProtocolAnomaly marks an agent response that arrived without any
	// agent audio before it.
	ErrProtocolAnomaly = errors.New("agent response without audio")

	errStageEnded = errors.New("stage ended during setup")
)

type Orchestrator struct {
	stage   stages.Stage
	options Options

	baseContext context.Context

	queue     chan queueItem
	closeCh   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	endOnce   sync.Once

	started   atomic.Bool
	alive     atomic.Bool
	cleanedUp atomic.Bool
	status    atomic.Value
	muted     atomic.Bool
	anomalies atomic.Int64

	mu     sync.RWMutex
	ended  bool
	agent  AgentChannel
	render RenderChannel
	player FallbackPlayer

	timer      *stageTimer
	transcript transcript.Transcript

	// Owned by the event loop.
	audioReceived bool
	fallbackOn    bool
	greeting      *time.Timer

	resultReady chan struct{}
	result      scoring.StageResult
	resultErr   error

	renderChunks   metric.Int64Counter
	fallbackChunks metric.Int64Counter
}

func NewOrchestrator(stage stages.Stage, opts ...OrchestratorOption) *Orchestrator {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.NewTicker == nil {
		options.NewTicker = newStdTicker
	}

	o := &Orchestrator{
		stage:       stage,
		options:     options,
		baseContext: context.Background(),
		queue:       make(chan queueItem, eventQueueCapacity),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		timer:       newStageTimer(stage.TimeLimit),
		resultReady: make(chan struct{}),
	}
	o.status.Store(StatusConnecting)
	o.muted.Store(options.SendGate == PushToTalk)

	var err error
	if o.renderChunks, err = meter.Int64Counter("orchestration.render_chunks",
		metric.WithDescription("Agent audio chunks forwarded to the render channel"),
	); err != nil {
		logger.Warn("failed to create render chunk counter", "error", err)
	}
	if o.fallbackChunks, err = meter.Int64Counter("orchestration.fallback_chunks",
		metric.WithDescription("Agent audio chunks routed to the local fallback player"),
	); err != nil {
		logger.Warn("failed to create fallback chunk counter", "error", err)
	}

	return o
}

// Run starts the stage: it starts the countdown and then sets up the fallback
// player, the render channel and the agent channel in that order, settling
// between steps. It returns once setup has finished; the stage stays live
// until the countdown expires, End is called, Cancel is called or ctx is
// done. A setup failure is returned, surfaced as a connection error and
// leaves the stage disconnected but still endable.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	o.baseContext = ctx
	o.alive.Store(true)
	o.startLoop()
	go func() {
		select {
		case <-ctx.Done():
			o.Cancel()
		case <-o.resultReady:
		}
	}()

	o.post("stage start", true, func(context.Context) { o.emitStatus() })

	o.timer.setExpiryHandler(func() { o.endStage(events.EndReasonTimer) })
	o.timer.start(o.options.NewTicker, func() bool {
		return o.post("timer tick", true, func(context.Context) {
			o.timer.tick(func(remaining time.Duration) {
				o.emit(events.NewTimerTicked(remaining))
			})
		})
	})

	err := o.setup(ctx)
	if errors.Is(err, errStageEnded) {
		return nil
	}
	if err != nil {
		logger.Error("stage setup failed", "stage", o.stage.ID, "error", err)
		o.post("setup failed", true, func(context.Context) {
			o.emit(events.NewConnectionError(err, err.Error()))
			o.setStatus(StatusDisconnected)
		})
		return err
	}
	return nil
}

func (o *Orchestrator) setup(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "stage setup")
	defer func() {
		if err != nil && !errors.Is(err, errStageEnded) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("stage.id", o.stage.ID),
		attribute.String("stage.run_id", o.options.RunID),
	)

	session := o.options.Session
	if session.AgentID == "" || session.RenderCredential == "" {
		return ErrSessionNotInitialized
	}

	if err := o.settle(ctx, o.options.SettleDelay); err != nil {
		return err
	}

	if o.options.NewPlayer != nil {
		player := o.options.NewPlayer()
		if !o.attach(func() { o.player = player }) {
			_ = player.Stop()
			return errStageEnded
		}
	} else {
		logger.Warn("no fallback player configured", "stage", o.stage.ID)
	}

	if o.options.InitializeRender == nil {
		return fmt.Errorf("failed to initialize avatar: no render initializer configured")
	}
	render, err := o.options.InitializeRender(ctx, session.RenderCredential, o.onRenderError)
	if err != nil {
		return fmt.Errorf("failed to initialize avatar: %w", err)
	}
	if !o.attach(func() { o.render = render }) {
		_ = render.Disconnect()
		return errStageEnded
	}

	if err := o.settle(ctx, o.options.SettleDelay); err != nil {
		return err
	}

	if o.options.DialAgent == nil {
		return fmt.Errorf("failed to connect agent: no agent dialer configured")
	}
	agent, err := o.options.DialAgent(ctx, session.AgentID, o.muted.Load(), o.agentCallbacks())
	if err != nil {
		return fmt.Errorf("failed to connect agent: %w", err)
	}
	if !o.attach(func() { o.agent = agent }) {
		_ = agent.Disconnect()
		return errStageEnded
	}
	o.post("agent attached", true, func(context.Context) {
		agent.SetMuted(o.muted.Load())
	})

	return nil
}

// settle waits out a setup delay and reports errStageEnded if the stage
// stopped being live meanwhile.
func (o *Orchestrator) settle(ctx context.Context, d time.Duration) error {
	if err := sleep(ctx, d); err != nil {
		return errStageEnded
	}
	if !o.alive.Load() {
		return errStageEnded
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) attach(set func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ended {
		return false
	}
	set()
	return true
}

func (o *Orchestrator) channels() (AgentChannel, RenderChannel, FallbackPlayer) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.agent, o.render, o.player
}

// End ends the stage on behalf of the user and waits for its result. Calling
// it again, or after the countdown expired, returns the same result.
func (o *Orchestrator) End(ctx context.Context) (scoring.StageResult, error) {
	if !o.started.Load() {
		return scoring.StageResult{}, ErrNotStarted
	}
	o.post("end stage", false, func(context.Context) { o.endStage(events.EndReasonUser) })
	return o.Result(ctx)
}

// Cancel tears the stage down without scoring it.
func (o *Orchestrator) Cancel() {
	if !o.started.Load() {
		return
	}
	o.post("cancel stage", false, func(context.Context) { o.endStage(events.EndReasonCancel) })
}

// Result blocks until the stage has ended.
func (o *Orchestrator) Result(ctx context.Context) (scoring.StageResult, error) {
	select {
	case <-ctx.Done():
		return scoring.StageResult{}, ctx.Err()
	case <-o.resultReady:
		return o.result, o.resultErr
	}
}

// Done is closed once the stage has ended and its result is available.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.resultReady
}

func (o *Orchestrator) Stage() stages.Stage {
	return o.stage
}

func (o *Orchestrator) Status() Status {
	return o.status.Load().(Status)
}

func (o *Orchestrator) IsMuted() bool {
	return o.muted.Load()
}

func (o *Orchestrator) Remaining() time.Duration {
	return o.timer.Remaining()
}

func (o *Orchestrator) Transcript() []transcript.Turn {
	return o.transcript.Turns()
}

// ProtocolAnomalies counts agent responses that arrived without audio.
func (o *Orchestrator) ProtocolAnomalies() int {
	return int(o.anomalies.Load())
}

// IsCleanedUp reports whether teardown has released every channel.
func (o *Orchestrator) IsCleanedUp() bool {
	return o.cleanedUp.Load()
}

// SetMuted closes or opens the send gate on behalf of the user. Under
// AutoMute the request is ignored while the agent is speaking.
func (o *Orchestrator) SetMuted(muted bool) {
	o.post("user mute", true, func(context.Context) {
		if o.options.SendGate == AutoMute && o.Status() == StatusSpeaking {
			logger.Debug("ignoring mute toggle while agent is speaking")
			return
		}
		o.applyMute(muted, true)
	})
}

func (o *Orchestrator) ToggleMute() {
	o.post("user mute toggle", true, func(context.Context) {
		if o.options.SendGate == AutoMute && o.Status() == StatusSpeaking {
			logger.Debug("ignoring mute toggle while agent is speaking")
			return
		}
		o.applyMute(!o.muted.Load(), true)
	})
}

// StartTalking opens the send gate for push-to-talk.
func (o *Orchestrator) StartTalking() { o.SetMuted(false) }

// StopTalking closes the send gate for push-to-talk.
func (o *Orchestrator) StopTalking() { o.SetMuted(true) }

func (o *Orchestrator) applyMute(muted, byUser bool) {
	if agent, _, _ := o.channels(); agent != nil {
		agent.SetMuted(muted)
	}
	if o.muted.Swap(muted) != muted {
		o.emit(events.NewMuteChanged(muted, byUser))
	}
}

func (o *Orchestrator) setStatus(status Status) {
	if o.status.Swap(status) == status {
		return
	}
	o.emitStatus()
}

func (o *Orchestrator) emitStatus() {
	o.emit(events.NewStatusChanged(string(o.Status())))
}

func (o *Orchestrator) emit(event events.Event) {
	if o.options.EventHandler == nil {
		return
	}
	if err := utils.Safely("event handler", func() error {
		o.options.EventHandler(event)
		return nil
	}); err != nil {
		logger.Error("event handler failed", "event", event.Kind(), "error", err)
	}
}

func (o *Orchestrator) agentCallbacks() agentvoice.Callbacks {
	return agentvoice.Callbacks{
		OnReady: func() {
			o.post("agent ready", true, o.handleAgentReady)
		},
		OnAudio: func(chunk agentvoice.Chunk) {
			o.post("agent audio", true, func(ctx context.Context) { o.handleAgentAudio(ctx, chunk) })
		},
		OnUserTranscript: func(text string) {
			o.post("user transcript", true, func(context.Context) { o.appendTurn(transcript.SpeakerUser, text) })
		},
		OnAgentResponse: func(text string) {
			o.post("agent response", true, func(context.Context) { o.handleAgentResponse(text) })
		},
		OnAgentResponseCorrection: func(original, corrected string) {
			o.post("agent response correction", true, func(context.Context) {
				o.emit(events.NewAgentResponseCorrected(original, corrected))
			})
		},
		OnInterrupt: func(eventID int) {
			o.post("agent interrupted", true, func(context.Context) { o.handleInterrupt(eventID) })
		},
		OnConversationInit: func(conversationID string) {
			o.post("conversation started", true, func(context.Context) {
				o.emit(events.NewConversationStarted(conversationID))
			})
		},
		OnError: func(err error) {
			o.post("agent error", true, func(context.Context) {
				logger.Error("agent channel failed", "stage", o.stage.ID, "error", err)
				o.emit(events.NewConnectionError(err, err.Error()))
				o.setStatus(StatusDisconnected)
			})
		},
		OnDisconnect: func() {
			o.post("agent disconnected", true, func(context.Context) {
				o.setStatus(StatusDisconnected)
			})
		},
	}
}

func (o *Orchestrator) handleAgentReady(context.Context) {
	o.setStatus(StatusThinking)
	o.greeting = time.AfterFunc(o.options.GreetingDelay, func() {
		o.post("greeting", true, func(context.Context) { o.triggerGreeting() })
	})
}

func (o *Orchestrator) triggerGreeting() {
	agent, render, _ := o.channels()
	if agent == nil || render == nil {
		logger.Warn("skipping greeting, channels not ready",
			"agent_ready", agent != nil,
			"render_ready", render != nil,
		)
		return
	}
	if err := agent.TriggerGreeting(); err != nil {
		logger.Warn("failed to trigger greeting", "error", err)
	}
}

func (o *Orchestrator) handleAgentAudio(ctx context.Context, chunk agentvoice.Chunk) {
	o.audioReceived = true
	o.setStatus(StatusSpeaking)
	if o.options.SendGate == AutoMute && !o.muted.Load() {
		o.applyMute(true, false)
	}

	_, render, player := o.channels()
	var renderErr error
	if render != nil {
		if renderErr = render.SendAudioChunk(chunk.Audio); renderErr == nil {
			if o.renderChunks != nil {
				o.renderChunks.Add(ctx, 1)
			}
			o.fallbackOn = false
			return
		}
		logger.Warn("render channel rejected audio, using fallback player", "error", renderErr)
	} else {
		renderErr = fmt.Errorf("render channel not connected")
	}

	if !o.fallbackOn {
		o.fallbackOn = true
		o.emit(events.NewAgentAudioFallback(renderErr))
	}
	if player == nil {
		logger.Warn("dropping agent audio, no fallback player")
		return
	}
	if o.fallbackChunks != nil {
		o.fallbackChunks.Add(ctx, 1)
	}
	if _, err := player.PlayChunk(ctx, chunk.Audio); err != nil {
		logger.Error("fallback player failed", "error", err)
	}
}

func (o *Orchestrator) handleAgentResponse(text string) {
	if !o.audioReceived {
		o.anomalies.Add(1)
		logger.Warn("agent response arrived without audio", "error", ErrProtocolAnomaly, "stage", o.stage.ID)
	}
	o.audioReceived = false
	o.fallbackOn = false

	o.endRenderSequence()
	o.setStatus(StatusListening)
	if o.options.SendGate == AutoMute && o.muted.Load() {
		o.applyMute(false, false)
	}
	o.appendTurn(transcript.SpeakerAgent, text)
}

func (o *Orchestrator) handleInterrupt(eventID int) {
	o.endRenderSequence()
	o.setStatus(StatusListening)
	o.emit(events.NewAgentInterrupted(eventID))
}

func (o *Orchestrator) endRenderSequence() {
	if _, render, _ := o.channels(); render != nil {
		if err := render.EndSequence(); err != nil {
			logger.Warn("failed to end render sequence", "error", err)
		}
	}
}

func (o *Orchestrator) appendTurn(speaker transcript.Speaker, text string) {
	turn := transcript.Turn{Speaker: speaker, Text: text, Timestamp: time.Now()}
	if err := o.transcript.Add(turn); err != nil {
		logger.Debug("skipping transcript turn", "speaker", speaker, "error", err)
		return
	}
	o.emit(events.NewTurnAppended(turn))
}

func (o *Orchestrator) onRenderError(err error) {
	o.post("render error", true, func(context.Context) {
		logger.Error("render channel failed, using fallback player", "stage", o.stage.ID, "error", err)
		o.emit(events.NewConnectionError(err, err.Error()))
	})
}
