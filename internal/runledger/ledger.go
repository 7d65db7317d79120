// Package runledger keeps the money raised per stage of a run so the stage
// complete endpoint can report a cumulative total.
package runledger

import (
	"context"
	"errors"
	"time"
)

const DefaultTTL = 24 * time.Hour

var ErrMissingRunID = errors.New("run id is required")

// Entry is the ledger of one run, keyed by stage id. Scoring a stage again
// replaces its amount.
type Entry struct {
	Stages map[string]int64 `json:"stages"`
}

func (e Entry) Total() int64 {
	var total int64
	for _, money := range e.Stages {
		total += money
	}
	return total
}

type Store interface {
	// Record stores the amount raised in a stage and returns the run total.
	Record(ctx context.Context, runID, stageID string, moneyRaised int64) (int64, error)
	Total(ctx context.Context, runID string) (int64, error)
	Delete(ctx context.Context, runID string) error
}
