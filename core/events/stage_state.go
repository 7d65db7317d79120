package events

import (
	"time"

	"github.com/koscakluka/pitchlive/core/scoring"
)

const (
	// KindStatusChanged identifies a session status transition.
	KindStatusChanged Kind = "stage_state.status_changed"
	// KindTimerTicked identifies a countdown tick.
	KindTimerTicked Kind = "stage_state.timer_ticked"
	// KindMuteChanged identifies a change of the microphone send gate.
	KindMuteChanged Kind = "stage_state.mute_changed"
	// KindConnectionError identifies a user-visible channel failure.
	KindConnectionError Kind = "stage_state.connection_error"
	// KindStageEnded identifies the end of a stage.
	KindStageEnded Kind = "stage_state.ended"
)

// StatusChanged carries the new session status.
type StatusChanged struct {
	Base
	Status string
}

// NewStatusChanged creates a status changed event.
func NewStatusChanged(status string) StatusChanged {
	return StatusChanged{Base: NewBase(KindStatusChanged), Status: status}
}

// TimerTicked carries the time left in the stage.
type TimerTicked struct {
	Base
	Remaining time.Duration
}

// NewTimerTicked creates a timer ticked event.
func NewTimerTicked(remaining time.Duration) TimerTicked {
	return TimerTicked{Base: NewBase(KindTimerTicked), Remaining: remaining}
}

// MuteChanged carries the send gate state and whether the user flipped it.
type MuteChanged struct {
	Base
	Muted  bool
	ByUser bool
}

// NewMuteChanged creates a mute changed event.
func NewMuteChanged(muted, byUser bool) MuteChanged {
	return MuteChanged{Base: NewBase(KindMuteChanged), Muted: muted, ByUser: byUser}
}

// ConnectionError carries a channel failure and a message for display.
type ConnectionError struct {
	Base
	Err     error
	Message string
}

// NewConnectionError creates a connection error event.
func NewConnectionError(err error, message string) ConnectionError {
	return ConnectionError{Base: NewBase(KindConnectionError), Err: err, Message: message}
}

type EndReason string

const (
	EndReasonTimer  EndReason = "timer"
	EndReasonUser   EndReason = "user"
	EndReasonCancel EndReason = "cancel"
)

// StageEnded carries the stage result.
type StageEnded struct {
	Base
	Result scoring.StageResult
	Reason EndReason
	// Scored is false when Result is the fallback result.
	Scored bool
}

// NewStageEnded creates a stage ended event.
func NewStageEnded(result scoring.StageResult, reason EndReason, scored bool) StageEnded {
	return StageEnded{Base: NewBase(KindStageEnded), Result: result, Reason: reason, Scored: scored}
}
