package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// MemoryStore keeps snapshots in process memory.
//
// Snapshots are stored in their JSON encoding rather than as live pointers,
// so a caller mutating a snapshot after Save cannot corrupt the stored
// copy. Intended for tests and ephemeral deployments; nothing survives a
// restart.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, owner string) (*vfs.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	encoded, ok := s.snapshots[owner]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	snapshot := &vfs.Snapshot{}
	if err := json.Unmarshal(encoded, snapshot); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot for %s: %w", owner, err)
	}
	return snapshot, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkOwner(owner); err != nil {
		return err
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", owner, err)
	}
	s.mu.Lock()
	s.snapshots[owner] = encoded
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
