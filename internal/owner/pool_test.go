package owner

import (
	"context"
	"fmt"
	"testing"

	"github.com/driftfs/driftfs/internal/persist"
	"github.com/driftfs/driftfs/pkg/vfs"
)

func testGen(prefix string) vfs.IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestPool(t *testing.T, store persist.Store) *Pool {
	t.Helper()
	pool, err := NewPool(store, Options{
		Hasher: vfs.PlaintextHasher{},
		IDGen:  testGen("id"),
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func TestBootstrapAndLogin(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t, persist.NewMemoryStore())

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	err := pool.View(ctx, "acme", func(s *vfs.Store) error {
		_, err := s.Login("root", "pw")
		return err
	})
	if err != nil {
		t.Errorf("login after bootstrap failed: %v", err)
	}

	err = pool.Bootstrap(ctx, "acme", "other", "pw")
	if !vfs.IsCode(err, vfs.ErrAlreadyExists) {
		t.Errorf("second bootstrap: expected AlreadyExists, got %v", err)
	}
}

func TestUnknownOwner(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t, persist.NewMemoryStore())

	// A login against an unknown owner fails the same way a wrong password
	// against a real one does, so owner names cannot be probed.
	err := pool.View(ctx, "ghost", func(s *vfs.Store) error {
		_, err := s.Login("root", "pw")
		return err
	})
	if !vfs.IsCode(err, vfs.ErrAuthFailed) {
		t.Errorf("expected AuthFailed, got %v", err)
	}

	// The fallback engine is not cached, so the owner can still be
	// bootstrapped afterwards.
	if err := pool.Bootstrap(ctx, "ghost", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap after probe failed: %v", err)
	}
	err = pool.View(ctx, "ghost", func(s *vfs.Store) error {
		_, err := s.Login("root", "pw")
		return err
	})
	if err != nil {
		t.Errorf("login after bootstrap failed: %v", err)
	}
}

func TestDoPersists(t *testing.T) {
	ctx := context.Background()
	backing := persist.NewMemoryStore()
	pool := newTestPool(t, backing)

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	err := pool.Do(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.WriteFile("/hello", []byte("world"), false)
		return err
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	// A second pool over the same backing store sees the write: persistence
	// happened, not just in-memory mutation.
	other := newTestPool(t, backing)
	err = other.View(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		data, err := view.ReadFile("/hello")
		if err != nil {
			return err
		}
		if string(data) != "world" {
			t.Errorf("persisted data = %q", data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View on second pool failed: %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t, persist.NewMemoryStore())

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := pool.Bootstrap(ctx, "globex", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	err := pool.Do(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.WriteFile("/secret", []byte("acme only"), false)
		return err
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	err = pool.View(ctx, "globex", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.ReadFile("/secret")
		if !vfs.IsCode(err, vfs.ErrNotFound) {
			t.Errorf("tenant isolation broken: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

// failingStore wraps a Store and fails saves on demand.
type failingStore struct {
	persist.Store
	failSaves bool
}

func (f *failingStore) Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error {
	if f.failSaves {
		return fmt.Errorf("save rejected")
	}
	return f.Store.Save(ctx, owner, snapshot)
}

func TestDoRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	backing := &failingStore{Store: persist.NewMemoryStore()}
	pool := newTestPool(t, backing)

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	backing.failSaves = true
	err := pool.Do(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.WriteFile("/doomed", []byte("x"), false)
		return err
	})
	if err == nil {
		t.Fatal("Do succeeded despite save failure")
	}

	// The hydrated engine must have been rolled back.
	backing.failSaves = false
	err = pool.View(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.ReadFile("/doomed")
		if !vfs.IsCode(err, vfs.ErrNotFound) {
			t.Errorf("rollback missed: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestDoSkipsSaveOnOperationFailure(t *testing.T) {
	ctx := context.Background()
	backing := &failingStore{Store: persist.NewMemoryStore()}
	pool := newTestPool(t, backing)

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	// With saves failing, a failed operation must surface its own error,
	// not a save error: nothing should be written at all.
	backing.failSaves = true
	err := pool.Do(ctx, "acme", func(s *vfs.Store) error {
		_, err := s.Login("root", "wrong")
		return err
	})
	if !vfs.IsCode(err, vfs.ErrAuthFailed) {
		t.Errorf("expected the operation's AuthFailed, got %v", err)
	}
}

func TestEvictionRehydrates(t *testing.T) {
	ctx := context.Background()
	backing := persist.NewMemoryStore()
	pool, err := NewPool(backing, Options{
		CacheSize: 1,
		Hasher:    vfs.PlaintextHasher{},
		IDGen:     testGen("id"),
	})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	if err := pool.Bootstrap(ctx, "acme", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if err := pool.Do(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.WriteFile("/kept", []byte("x"), false)
		return err
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	// Evict acme by touching a second tenant in the size-1 cache.
	if err := pool.Bootstrap(ctx, "globex", "root", "pw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	err = pool.View(ctx, "acme", func(s *vfs.Store) error {
		ses, err := s.Login("root", "pw")
		if err != nil {
			return err
		}
		view, err := ses.FS()
		if err != nil {
			return err
		}
		_, err = view.ReadFile("/kept")
		return err
	})
	if err != nil {
		t.Errorf("rehydration after eviction failed: %v", err)
	}
}
