package events

import (
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/core/transcript"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "status changed", event: NewStatusChanged("listening"), expected: KindStatusChanged},
		{name: "timer ticked", event: NewTimerTicked(time.Second), expected: KindTimerTicked},
		{name: "mute changed", event: NewMuteChanged(true, false), expected: KindMuteChanged},
		{name: "connection error", event: NewConnectionError(errors.New("x"), "x"), expected: KindConnectionError},
		{name: "stage ended", event: NewStageEnded(scoring.FallbackResult(), EndReasonTimer, false), expected: KindStageEnded},
		{name: "turn appended", event: NewTurnAppended(transcript.Turn{}), expected: KindTurnAppended},
		{name: "conversation started", event: NewConversationStarted("conv"), expected: KindConversationStarted},
		{name: "agent response corrected", event: NewAgentResponseCorrected("a", "b"), expected: KindAgentResponseCorrected},
		{name: "agent interrupted", event: NewAgentInterrupted(1), expected: KindAgentInterrupted},
		{name: "agent audio fallback", event: NewAgentAudioFallback(nil), expected: KindAgentAudioFallback},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected event to be timestamped")
			}
		})
	}
}
