package runledger

import (
	"context"
	"maps"
	"sync"
)

type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]Entry{}}
}

func (s *MemoryStore) Record(ctx context.Context, runID, stageID string, moneyRaised int64) (int64, error) {
	if runID == "" {
		return 0, ErrMissingRunID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.runs[runID]
	stagesCopy := maps.Clone(entry.Stages)
	if stagesCopy == nil {
		stagesCopy = map[string]int64{}
	}
	stagesCopy[stageID] = moneyRaised
	entry.Stages = stagesCopy
	s.runs[runID] = entry
	return entry.Total(), nil
}

func (s *MemoryStore) Total(ctx context.Context, runID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[runID].Total(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
