package main

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/pitchlive/core/agentvoice"
	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/events"
	"github.com/koscakluka/pitchlive/core/microphone"
	"github.com/koscakluka/pitchlive/core/orchestration"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/core/transcript"
	"github.com/koscakluka/pitchlive/internal/config"
	"github.com/koscakluka/pitchlive/internal/session"
)

type app struct {
	cfg      config.Config
	run      *stages.Run
	sessions session.Starter
	scorer   scoring.Scorer
	devices  *audioDevices
	surfaces *avatar.Surfaces
	send     func(tea.Msg)
}

type (
	sessionStartedMsg struct{ info session.Info }
	sessionFailedMsg  struct{ err error }
	stageEventMsg     struct{ event events.Event }
	stageResultMsg    struct {
		result scoring.StageResult
		err    error
	}
)

type keyMap struct {
	Start key.Binding
	Mute  key.Binding
	End   key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Mute, k.End, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newKeyMap(gate orchestration.SendGatePolicy) keyMap {
	muteHelp := "mute"
	if gate == orchestration.PushToTalk {
		muteHelp = "talk"
	}
	return keyMap{
		Start: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue")),
		Mute:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", muteHelp)),
		End:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "end stage")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type model struct {
	ctx context.Context
	app *app

	orchestrator *orchestration.Orchestrator
	starting     bool
	status       orchestration.Status
	remaining    time.Duration
	muted        bool
	renderState  avatar.RenderState
	frames       int
	turns        []transcript.Turn
	connErr      string
	notice       string

	result scoring.StageResult
	scored bool

	width    int
	spinner  spinner.Model
	viewport viewport.Model
	keys     keyMap
	help     help.Model
}

func newModel(ctx context.Context, a *app) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = accentStyle

	return model{
		ctx:      ctx,
		app:      a,
		spinner:  s,
		viewport: viewport.New(80, 12),
		keys:     newKeyMap(a.cfg.SendGate),
		help:     help.New(),
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	if err := m.app.run.Start(""); err != nil {
		return func() tea.Msg { return sessionFailedMsg{err: err} }
	}
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = max(msg.Height-14, 5)
		m.viewport.SetContent(renderTranscript(m.turns, m.viewport.Width))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionStartedMsg:
		return m.goLive(msg.info)

	case sessionFailedMsg:
		m.starting = false
		m.connErr = msg.err.Error()
		return m, nil

	case stageEventMsg:
		m.applyEvent(msg.event)
		return m, nil

	case renderStateMsg:
		m.renderState = msg.state
		return m, nil

	case frameMsg:
		m.frames++
		return m, nil

	case stageResultMsg:
		return m.finishStage(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.app.run.State()
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.orchestrator != nil {
			m.orchestrator.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Start):
		switch state {
		case stages.RunStageIntro:
			if m.starting {
				return m, nil
			}
			m.starting = true
			m.connErr = ""
			return m, m.startSession()
		case stages.RunResult:
			if _, _, err := m.app.run.Advance(); err != nil {
				m.notice = err.Error()
			}
			m.resetStage()
			return m, nil
		case stages.RunSummary:
			m.app.run.Reset()
			m.resetStage()
			return m, m.Init()
		}

	case key.Matches(msg, m.keys.Mute):
		if state != stages.RunLive || m.orchestrator == nil {
			return m, nil
		}
		if m.app.cfg.SendGate == orchestration.PushToTalk {
			if m.muted {
				m.orchestrator.StartTalking()
			} else {
				m.orchestrator.StopTalking()
			}
			return m, nil
		}
		m.orchestrator.ToggleMute()

	case key.Matches(msg, m.keys.End):
		if state != stages.RunLive || m.orchestrator == nil {
			return m, nil
		}
		o := m.orchestrator
		m.notice = "Ending stage..."
		return m, func() tea.Msg {
			_, _ = o.End(m.ctx)
			return nil
		}
	}
	return m, nil
}

func (m model) startSession() tea.Cmd {
	run := m.app.run
	stage, ok := run.CurrentStage()
	if !ok {
		return nil
	}
	sessions, ctx, runID := m.app.sessions, m.ctx, run.ID()
	return func() tea.Msg {
		info, err := sessions.Start(ctx, runID, stage.ID)
		if err != nil {
			return sessionFailedMsg{err: err}
		}
		return sessionStartedMsg{info: info}
	}
}

func (m model) goLive(info session.Info) (tea.Model, tea.Cmd) {
	run := m.app.run
	stage, ok := run.CurrentStage()
	if !ok {
		return m, nil
	}
	run.SetSessionData(info.SessionData())
	if err := run.GoLive(); err != nil {
		m.starting = false
		m.connErr = err.Error()
		return m, nil
	}

	cfg := m.app.cfg
	send := m.app.send
	mic := microphone.New(m.app.devices.capture)
	o := orchestration.NewOrchestrator(stage,
		orchestration.WithSession(info.RunID, run.SessionData()),
		orchestration.WithAgentDialer(orchestration.DialAgent(mic, agentvoice.WithBaseURL(cfg.AgentWSURL))),
		orchestration.WithRenderInitializer(orchestration.InitializeAvatar(renderTarget,
			avatar.WithURL(cfg.AvatarRenderURL),
			avatar.WithSurfaces(m.app.surfaces),
		)),
		orchestration.WithFallbackPlayer(orchestration.DevicePlayer(m.app.devices.playback)),
		orchestration.WithScorer(m.app.scorer),
		orchestration.WithSendGate(cfg.SendGate),
		orchestration.WithEventHandler(func(event events.Event) { send(stageEventMsg{event: event}) }),
	)

	m.orchestrator = o
	m.starting = false
	m.status = orchestration.StatusConnecting
	m.remaining = stage.TimeLimit
	m.muted = o.IsMuted()

	ctx := m.ctx
	return m, func() tea.Msg {
		// setup failures arrive as connection error events
		_ = o.Run(ctx)
		result, err := o.Result(ctx)
		return stageResultMsg{result: result, err: err}
	}
}

func (m *model) applyEvent(event events.Event) {
	switch e := event.(type) {
	case events.StatusChanged:
		m.status = orchestration.Status(e.Status)
	case events.TimerTicked:
		m.remaining = e.Remaining
	case events.MuteChanged:
		m.muted = e.Muted
	case events.ConnectionError:
		m.connErr = e.Message
	case events.TurnAppended:
		m.turns = append(m.turns, e.Turn)
		m.viewport.SetContent(renderTranscript(m.turns, m.viewport.Width))
		m.viewport.GotoBottom()
	case events.AgentAudioFallback:
		m.notice = "Avatar unavailable, playing audio locally"
	case events.StageEnded:
		m.scored = e.Scored
	}
}

func (m model) finishStage(msg stageResultMsg) (tea.Model, tea.Cmd) {
	m.orchestrator = nil
	if errors.Is(msg.err, orchestration.ErrStageCancelled) || errors.Is(msg.err, context.Canceled) {
		return m, tea.Quit
	}
	if msg.err != nil {
		m.connErr = msg.err.Error()
		return m, nil
	}

	m.result = msg.result
	if err := m.app.run.CompleteStage(msg.result); err != nil {
		m.notice = err.Error()
	}
	return m, nil
}

func (m *model) resetStage() {
	m.orchestrator = nil
	m.starting = false
	m.status = ""
	m.remaining = 0
	m.muted = false
	m.renderState = ""
	m.frames = 0
	m.turns = nil
	m.connErr = ""
	m.notice = ""
	m.result = scoring.StageResult{}
	m.scored = false
	m.viewport.SetContent("")
}
