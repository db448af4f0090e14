package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and single-process use.
// Safe for concurrent use; checkpoint consumption is atomic under the mutex.
type MemoryStore struct {
	mu          sync.Mutex
	runs        map[string]*RunRecord
	events      map[string][]*Event
	checkpoints map[string]*Checkpoint
	nextEventID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]*RunRecord),
		events:      make(map[string][]*Event),
		checkpoints: make(map[string]*Checkpoint),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	r := *run
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	s.runs[run.ID] = &r
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, id string, update RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return storeNotFound("run", id)
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.State != nil {
		r.State = update.State
	}
	if update.Error != nil {
		r.Error = update.Error
	}
	if update.CompletedAt != nil {
		r.CompletedAt = update.CompletedAt
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RunRecord
	for _, r := range s.runs {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Mode != "" && r.Mode != filter.Mode {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	e := *event
	e.ID = s.nextEventID
	e.Sequence = int64(len(s.events[event.RunID])) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	event.Sequence = e.Sequence
	s.events[event.RunID] = append(s.events[event.RunID], &e)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, runID string, since int64) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events[runID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateCheckpoint(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.checkpoints[cp.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "checkpoint %q already exists", cp.ID)
	}
	c := *cp
	if c.Status == "" {
		c.Status = CheckpointPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.checkpoints[cp.ID] = &c
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkpoints[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
	}
	cp := *c
	return &cp, nil
}

// ConsumeCheckpoint marks a pending checkpoint consumed and returns it.
// Exactly one concurrent caller wins; the rest get CHECKPOINT_CONSUMED.
func (s *MemoryStore) ConsumeCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkpoints[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
	}
	if c.Status != CheckpointPending {
		return nil, schema.NewErrorf(schema.ErrCodeCheckpointConsumed, "checkpoint %q already consumed", id)
	}
	now := time.Now().UTC()
	c.Status = CheckpointConsumed
	c.ConsumedAt = &now
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, filter CheckpointFilter) ([]*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Checkpoint
	for _, c := range s.checkpoints {
		if filter.RunID != "" && c.RunID != filter.RunID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.CreatedBefore != nil && !c.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteCheckpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkpoints[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeCheckpointNotFound, "checkpoint %q not found", id)
	}
	delete(s.checkpoints, id)
	return nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
