package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// DirStore persists each owner's snapshot as a JSON file in one directory.
//
// Saves are atomic: the snapshot is written to a temporary file in the same
// directory and renamed over the previous one, so a crash mid-save leaves
// the old snapshot intact.
type DirStore struct {
	root string
}

// NewDirStore creates a directory-backed snapshot store rooted at root,
// creating the directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, fmt.Errorf("directory store: path is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", root, err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(owner string) string {
	return filepath.Join(s.root, owner+".json")
}

func (s *DirStore) Load(ctx context.Context, owner string) (*vfs.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, false, err
	}

	encoded, err := os.ReadFile(s.path(owner))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot for %s: %w", owner, err)
	}
	snapshot := &vfs.Snapshot{}
	if err := json.Unmarshal(encoded, snapshot); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot for %s: %w", owner, err)
	}
	return snapshot, true, nil
}

func (s *DirStore) Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error {
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

	tmp, err := os.CreateTemp(s.root, owner+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot for %s: %w", owner, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot for %s: %w", owner, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot for %s: %w", owner, err)
	}
	if err := os.Rename(tmp.Name(), s.path(owner)); err != nil {
		return fmt.Errorf("failed to replace snapshot for %s: %w", owner, err)
	}
	return nil
}

func (s *DirStore) Close() error { return nil }
