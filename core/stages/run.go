package stages

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/pitchlive/core/scoring"
)

type RunState string

const (
	RunIdle       RunState = "idle"
	RunStageIntro RunState = "stage_intro"
	RunLive       RunState = "live"
	RunResult     RunState = "result"
	RunSummary    RunState = "summary"
)

var ErrInvalidTransition = errors.New("invalid run state transition")

// SessionData is what the session-issuing collaborator hands out for one
// stage. It is cleared whenever a new stage begins.
type SessionData struct {
	AgentID          string
	RenderCredential string
}

type StageOutcome struct {
	StageID string
	scoring.StageResult
}

// Run is one user's ordered traversal of the catalog. It is owned by the
// caller that created it and passed explicitly to whatever needs it.
type Run struct {
	mu sync.RWMutex

	id       string
	catalog  Catalog
	state    RunState
	current  string
	session  SessionData
	outcomes []StageOutcome
	total    int64
}

func NewRun(catalog Catalog) *Run {
	return &Run{catalog: catalog, state: RunIdle}
}

// Start begins the run at the first stage. An explicit id may be supplied by
// a backend; otherwise one is generated.
func (r *Run) Start(id string) error {
	first, ok := r.catalog.First()
	if !ok {
		return fmt.Errorf("stage catalog is empty")
	}
	if id == "" {
		id = "run_" + uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
	r.state = RunStageIntro
	r.current = first.ID
	r.session = SessionData{}
	r.outcomes = nil
	r.total = 0
	return nil
}

func (r *Run) SetSessionData(data SessionData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = data
}

func (r *Run) GoLive() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunStageIntro {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, RunLive)
	}
	r.state = RunLive
	return nil
}

// CompleteStage records the result of the current stage.
func (r *Run) CompleteStage(result scoring.StageResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunLive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, RunResult)
	}

	r.outcomes = append(r.outcomes, StageOutcome{StageID: r.current, StageResult: result})
	r.total = result.TotalRaised
	r.state = RunResult
	return nil
}

// Advance moves to the next stage intro, or to the summary after the last
// stage. It reports whether another stage follows.
func (r *Run) Advance() (Stage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunResult {
		return Stage{}, false, fmt.Errorf("%w: advance from %s", ErrInvalidTransition, r.state)
	}

	next, ok := r.catalog.Next(r.current)
	if !ok {
		r.state = RunSummary
		return Stage{}, false, nil
	}

	r.current = next.ID
	r.session = SessionData{}
	r.state = RunStageIntro
	return next, true, nil
}

func (r *Run) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = ""
	r.state = RunIdle
	r.current = ""
	r.session = SessionData{}
	r.outcomes = nil
	r.total = 0
}

func (r *Run) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *Run) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Run) CurrentStage() (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return Stage{}, false
	}
	return r.catalog.ByID(r.current)
}

func (r *Run) SessionData() SessionData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

func (r *Run) Outcomes() []StageOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	outcomes := make([]StageOutcome, len(r.outcomes))
	copy(outcomes, r.outcomes)
	return outcomes
}

func (r *Run) TotalRaised() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Run) IsLastStage() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.IsLast(r.current)
}
