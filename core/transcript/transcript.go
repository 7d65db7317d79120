package transcript

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAgent
}

var ErrEmptyTurn = errors.New("turn text is empty")

// Turn is one attributed utterance. Timestamp is informational only.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the append-only list of turns for one stage, in the order
// they were finalized.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

func (t *Transcript) Add(turn Turn) error {
	if !turn.Speaker.Valid() {
		return fmt.Errorf("invalid speaker %q", turn.Speaker)
	}
	if strings.TrimSpace(turn.Text) == "" {
		return ErrEmptyTurn
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
	return nil
}

// Turns returns a copy of the turns recorded so far.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	turns := make([]Turn, len(t.turns))
	copy(turns, t.turns)
	return turns
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}

// UserText joins everything the user said, in order.
func UserText(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Speaker == SpeakerUser {
			parts = append(parts, turn.Text)
		}
	}
	return strings.Join(parts, " ")
}
