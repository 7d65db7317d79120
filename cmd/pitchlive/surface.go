package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/pitchlive/core/avatar"
)

const renderTarget = "terminal"

type renderStateMsg struct{ state avatar.RenderState }

type frameMsg struct{ frame avatar.Frame }

// terminalSurface forwards render updates to the program.
type terminalSurface struct {
	send func(msg tea.Msg)
}

func (s terminalSurface) SetRenderState(state avatar.RenderState) {
	s.send(renderStateMsg{state: state})
}

func (s terminalSurface) RenderFrame(frame avatar.Frame) {
	s.send(frameMsg{frame: frame})
}
