package persist

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// badgerKeyPrefix namespaces snapshot keys inside the database.
const badgerKeyPrefix = "snapshot:"

// BadgerStoreConfig contains configuration for the BadgerDB snapshot store.
type BadgerStoreConfig struct {
	// Path is the database directory. Created if missing.
	Path string `mapstructure:"path"`

	// InMemory runs BadgerDB without touching disk. Used by tests.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites forces an fsync on every write. Slower but loses nothing
	// on a crash.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// BadgerStore persists snapshots in an embedded BadgerDB database.
//
// One key per owner. BadgerDB's transactional writes give the atomic-save
// guarantee for free: a Save either commits or the previous value stays.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(ctx context.Context, cfg BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store: path is required")
	}

	options := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(owner string) []byte {
	return []byte(badgerKeyPrefix + owner)
}

func (s *BadgerStore) Load(ctx context.Context, owner string) (*vfs.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkOwner(owner); err != nil {
		return nil, false, err
	}

	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(owner))
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
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

func (s *BadgerStore) Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error {
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
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(owner), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w", owner, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
