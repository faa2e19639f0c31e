package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meetprep/backend/internal/domain/shared"
)

// MemoryCheckpointStore keeps checkpoints in process memory
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[groupPartition]shared.Checkpoint
}

// NewMemoryCheckpointStore creates an empty store
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[groupPartition]shared.Checkpoint),
	}
}

// Load returns the last committed offset, or ""
func (s *MemoryCheckpointStore) Load(_ context.Context, group string, partition int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[groupPartition{group, partition}].Offset, nil
}

// Commit stores the offset
func (s *MemoryCheckpointStore) Commit(_ context.Context, group string, partition int, offset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[groupPartition{group, partition}] = shared.Checkpoint{
		Group:     group,
		Partition: partition,
		Offset:    offset,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// List returns the checkpoints of group, or of every group when group is ""
func (s *MemoryCheckpointStore) List(_ context.Context, group string) ([]shared.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shared.Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		if group == "" || cp.Group == group {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Partition < out[j].Partition
	})
	return out, nil
}

var _ shared.CheckpointStore = (*MemoryCheckpointStore)(nil)
