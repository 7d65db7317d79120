package events

import "github.com/koscakluka/pitchlive/core/transcript"

// KindTurnAppended identifies a finalized transcript turn.
const KindTurnAppended Kind = "transcript.turn_appended"

// TurnAppended carries the turn that was added to the transcript.
type TurnAppended struct {
	Base
	Turn transcript.Turn
}

// NewTurnAppended creates a turn appended event.
func NewTurnAppended(turn transcript.Turn) TurnAppended {
	return TurnAppended{Base: NewBase(KindTurnAppended), Turn: turn}
}
