package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/pitchlive/core/agentvoice"
	"github.com/koscakluka/pitchlive/core/events"
	"github.com/koscakluka/pitchlive/core/scoring"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type loggedTicker struct {
	*fakeTicker
	log *callLog
}

func (t *loggedTicker) Stop() { t.log.add("timer.stop"); t.fakeTicker.Stop() }

type loggedAgent struct {
	*fakeAgent
	log *callLog
	err error
}

func (a *loggedAgent) Disconnect() error {
	a.log.add("agent.disconnect")
	_ = a.fakeAgent.Disconnect()
	return a.err
}

type loggedRender struct {
	*fakeRender
	log             *callLog
	panicDisconnect bool
}

func (r *loggedRender) EndSequence() error {
	r.log.add("render.end")
	return r.fakeRender.EndSequence()
}

func (r *loggedRender) Disconnect() error {
	r.log.add("render.disconnect")
	if r.panicDisconnect {
		panic("render surface already gone")
	}
	return r.fakeRender.Disconnect()
}

type loggedPlayer struct {
	*fakePlayer
	log *callLog
}

func (p *loggedPlayer) Stop() error {
	p.log.add("player.stop")
	return p.fakePlayer.Stop()
}

// loggedScorer records whether teardown had finished when scoring started.
type loggedScorer struct {
	lh *loggedHarness
}

func (s *loggedScorer) Score(ctx context.Context, req scoring.Request) (scoring.StageResult, error) {
	if s.lh.orchestrator.IsCleanedUp() {
		s.lh.log.add("score(cleaned)")
	} else {
		s.lh.log.add("score(live)")
	}
	return s.lh.scorer.Score(ctx, req)
}

type loggedHarness struct {
	*harness
	log    *callLog
	agent  *loggedAgent
	render *loggedRender
}

// newLoggedHarness wraps the harness fakes so that every teardown step and
// the scoring call land in one shared log.
func newLoggedHarness(t *testing.T) *loggedHarness {
	t.Helper()
	lh := &loggedHarness{log: &callLog{}}

	lh.harness = newHarness(t, 45*time.Second,
		WithTicker(func(time.Duration) Ticker { return &loggedTicker{fakeTicker: lh.ticker, log: lh.log} }),
		WithFallbackPlayer(func() FallbackPlayer { return &loggedPlayer{fakePlayer: lh.player, log: lh.log} }),
		WithRenderInitializer(func(context.Context, string, func(error)) (RenderChannel, error) {
			return lh.render, nil
		}),
		WithAgentDialer(func(ctx context.Context, agentID string, startMuted bool, callbacks agentvoice.Callbacks) (AgentChannel, error) {
			lh.mu.Lock()
			lh.callbacks = callbacks
			lh.mu.Unlock()
			callbacks.OnReady()
			return lh.agent, nil
		}),
		WithScorer(&loggedScorer{lh: lh}),
	)
	lh.agent = &loggedAgent{fakeAgent: lh.harness.agent, log: lh.log}
	lh.render = &loggedRender{fakeRender: lh.harness.render, log: lh.log}
	return lh
}

var teardownOrder = []string{"timer.stop", "agent.disconnect", "render.end", "render.disconnect", "player.stop", "score(cleaned)"}

func TestTeardownReleasesChannelsInOrderBeforeScoring(t *testing.T) {
	lh := newLoggedHarness(t)
	lh.run(t)

	result := endStage(t, lh.orchestrator)
	if result.Stars != 4 {
		t.Fatalf("expected scorer result, got %+v", result)
	}

	if got := lh.log.snapshot(); strings.Join(got, ",") != strings.Join(teardownOrder, ",") {
		t.Fatalf("expected teardown order %v, got %v", teardownOrder, got)
	}
}

func TestTeardownContinuesPastFailingSteps(t *testing.T) {
	lh := newLoggedHarness(t)
	lh.agent.err = errors.New("socket already closed")
	lh.render.panicDisconnect = true
	lh.run(t)

	result := endStage(t, lh.orchestrator)
	if result.Stars != 4 {
		t.Fatalf("expected stage to still be scored, got %+v", result)
	}

	if got := lh.log.snapshot(); strings.Join(got, ",") != strings.Join(teardownOrder, ",") {
		t.Fatalf("expected teardown order %v, got %v", teardownOrder, got)
	}
	if !lh.orchestrator.IsCleanedUp() {
		t.Fatalf("expected teardown to finish")
	}
	if got := lh.orchestrator.Status(); got != StatusDisconnected {
		t.Fatalf("expected status %q, got %q", StatusDisconnected, got)
	}
	if n := lh.events.count(events.KindStageEnded); n != 1 {
		t.Fatalf("expected one stage ended event, got %d", n)
	}
}

func TestInterruptEndsRenderSequence(t *testing.T) {
	lh := newLoggedHarness(t)
	lh.run(t)
	callbacks := lh.agentCallbacks()

	callbacks.OnAudio(agentvoice.Chunk{Audio: "AAAA"})
	eventually(t, func() bool { return lh.orchestrator.Status() == StatusSpeaking }, "speaking status")

	callbacks.OnInterrupt(7)
	eventually(t, func() bool { return lh.events.count(events.KindAgentInterrupted) == 1 }, "interrupt event")

	if calls := lh.log.snapshot(); len(calls) != 1 || calls[0] != "render.end" {
		t.Fatalf("expected only the render sequence to end, got %v", calls)
	}
	if got := lh.orchestrator.Status(); got != StatusListening {
		t.Fatalf("expected status %q, got %q", StatusListening, got)
	}
	interrupted := lh.events.last(events.KindAgentInterrupted).(events.AgentInterrupted)
	if interrupted.EventID != 7 {
		t.Fatalf("expected event id 7, got %d", interrupted.EventID)
	}

	endStage(t, lh.orchestrator)
}
