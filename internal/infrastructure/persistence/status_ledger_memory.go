package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
)

type statusKey struct {
	objectID string
	tenantID string
	topic    topic.Topic
}

// MemoryStatusLedger is an in-process shared.StatusLedger for tests and the memory bus
type MemoryStatusLedger struct {
	mu      sync.RWMutex
	records map[statusKey]shared.StatusRecord
}

// NewMemoryStatusLedger creates an empty ledger
func NewMemoryStatusLedger() *MemoryStatusLedger {
	return &MemoryStatusLedger{records: make(map[statusKey]shared.StatusRecord)}
}

// Start creates the record in state STARTED unless the key exists
func (l *MemoryStatusLedger) Start(ctx context.Context, in shared.StartInput) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if in.ObjectID == "" || !in.Topic.IsValid() {
		return false, shared.ErrInvalidInput
	}
	key := statusKey{in.ObjectID, in.TenantID, in.Topic}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[key]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	l.records[key] = shared.StatusRecord{
		CorrelationID: in.CorrelationID,
		ObjectID:      in.ObjectID,
		TenantID:      in.TenantID,
		Topic:         in.Topic,
		ObjectType:    in.ObjectType,
		PreviousTopic: in.CausationTopic,
		State:         shared.StatusStarted,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	return true, nil
}

// Update moves an existing record to state
func (l *MemoryStatusLedger) Update(ctx context.Context, objectID, tenantID string, t topic.Topic, state shared.StatusState, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !state.IsValid() {
		return shared.ErrInvalidInput
	}
	key := statusKey{objectID, tenantID, t}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return shared.ErrNotFound
	}
	rec.State = state
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = time.Now().UTC()
	l.records[key] = rec
	return nil
}

// Get returns one record
func (l *MemoryStatusLedger) Get(ctx context.Context, objectID, tenantID string, t topic.Topic) (*shared.StatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[statusKey{objectID, tenantID, t}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &rec, nil
}

// Delete removes one record
func (l *MemoryStatusLedger) Delete(ctx context.Context, objectID, tenantID string, t topic.Topic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := statusKey{objectID, tenantID, t}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[key]; !ok {
		return shared.ErrNotFound
	}
	delete(l.records, key)
	return nil
}

// ListByObject returns every record of an object ordered by start time
func (l *MemoryStatusLedger) ListByObject(ctx context.Context, objectID, tenantID string) ([]shared.StatusRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	out := make([]shared.StatusRecord, 0)
	for k, rec := range l.records {
		if k.objectID == objectID && k.tenantID == tenantID {
			out = append(out, rec)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

// DeleteByObject removes every record of an object
func (l *MemoryStatusLedger) DeleteByObject(ctx context.Context, objectID, tenantID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for k := range l.records {
		if k.objectID == objectID && k.tenantID == tenantID {
			delete(l.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of records
func (l *MemoryStatusLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

var _ shared.StatusLedger = (*MemoryStatusLedger)(nil)
