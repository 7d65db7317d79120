package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/pitchlive/core/orchestration"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/stages"
	"github.com/koscakluka/pitchlive/core/transcript"
	"github.com/muesli/reflow/wordwrap"
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	agentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	statusStyles = map[orchestration.Status]lipgloss.Style{
		orchestration.StatusConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		orchestration.StatusListening:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		orchestration.StatusThinking:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestration.StatusSpeaking:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestration.StatusDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func (m model) View() string {
	var b strings.Builder
	switch m.app.run.State() {
	case stages.RunStageIntro:
		b.WriteString(m.introView())
	case stages.RunLive:
		b.WriteString(m.liveView())
	case stages.RunResult:
		b.WriteString(m.resultView())
	case stages.RunSummary:
		b.WriteString(m.summaryView())
	default:
		b.WriteString(mutedStyle.Render("Starting..."))
	}

	if m.notice != "" {
		b.WriteString("\n" + mutedStyle.Render(m.notice))
	}
	b.WriteString("\n\n" + m.help.View(m.keys))
	return b.String()
}

func (m model) introView() string {
	stage, _ := m.app.run.CurrentStage()
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n\n", titleStyle.Render(stage.Name), mutedStyle.Render(formatClock(stage.TimeLimit)))
	b.WriteString(wordwrap.String(stage.Objective, max(m.width-4, 20)))
	b.WriteString("\n\n")
	if m.starting {
		b.WriteString(m.spinner.View() + " Preparing session...")
	} else {
		b.WriteString(mutedStyle.Render("Press enter when you are ready to pitch."))
	}
	if m.connErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.connErr))
	}
	return b.String()
}

func (m model) liveView() string {
	stage, _ := m.app.run.CurrentStage()
	style, ok := statusStyles[m.status]
	if !ok {
		style = mutedStyle
	}

	status := style.Render(strings.ToUpper(string(m.status)))
	if m.status == orchestration.StatusConnecting || m.status == orchestration.StatusThinking {
		status = m.spinner.View() + " " + status
	}
	mic := passStyle.Render("mic on")
	if m.muted {
		mic = mutedStyle.Render("mic off")
	}
	avatarState := mutedStyle.Render(fmt.Sprintf("avatar %s (%d frames)", orDash(string(m.renderState)), m.frames))

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(stage.Name), "  ",
		accentStyle.Render(formatClock(m.remaining)), "  ",
		status, "  ", mic, "  ", avatarState,
	)

	var b strings.Builder
	b.WriteString(header + "\n")
	if m.connErr != "" {
		b.WriteString(errorStyle.Render(m.connErr) + "\n")
	}
	b.WriteString(panelStyle.Render(m.viewport.View()))
	return b.String()
}

func (m model) resultView() string {
	stage, _ := m.app.run.CurrentStage()
	r := m.result

	verdict := passStyle.Render("PASS")
	if r.PassFail == scoring.Fail {
		verdict = failStyle.Render("FAIL")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n\n", titleStyle.Render(stage.Name), renderStars(r.Stars), verdict)
	fmt.Fprintf(&b, "Raised %s   Total %s\n", accentStyle.Render(formatMoney(r.MoneyRaised)), accentStyle.Render(formatMoney(r.TotalRaised)))
	if !m.scored {
		b.WriteString(mutedStyle.Render("Scoring was unavailable for this stage.") + "\n")
	}
	b.WriteString("\n")
	for _, line := range r.Feedback {
		b.WriteString(wordwrap.String("• "+line, max(m.width-4, 20)) + "\n")
	}

	next := "Press enter for the summary."
	if !m.app.run.IsLastStage() {
		next = "Press enter for the next stage."
	}
	b.WriteString("\n" + mutedStyle.Render(next))
	return b.String()
}

func (m model) summaryView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Run complete") + "\n\n")
	for _, outcome := range m.app.run.Outcomes() {
		stage, _ := stages.Default.ByID(outcome.StageID)
		fmt.Fprintf(&b, "%-14s %s  %s\n", stage.Name, renderStars(outcome.Stars), formatMoney(outcome.MoneyRaised))
	}
	fmt.Fprintf(&b, "\nTotal raised %s\n", accentStyle.Render(formatMoney(m.app.run.TotalRaised())))
	b.WriteString("\n" + mutedStyle.Render("Press enter to start a new run."))
	return b.String()
}

func renderTranscript(turns []transcript.Turn, width int) string {
	if len(turns) == 0 {
		return mutedStyle.Render("Nothing said yet.")
	}
	width = max(width-2, 20)

	var b strings.Builder
	for _, turn := range turns {
		label := userStyle.Render("You")
		if turn.Speaker == transcript.SpeakerAgent {
			label = agentStyle.Render("Investor")
		}
		b.WriteString(label + "\n")
		b.WriteString(wordwrap.String(turn.Text, width) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStars(n int) string {
	n = min(max(n, 0), 5)
	return accentStyle.Render(strings.Repeat("★", n)) + mutedStyle.Render(strings.Repeat("☆", 5-n))
}

func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func formatMoney(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
