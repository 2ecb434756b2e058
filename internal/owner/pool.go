// Package owner multiplexes tenants over one persist.Store.
//
// Each owner (tenant) is a fully isolated vfs.Store hydrated from its
// persisted snapshot on first use and cached in an LRU. Every mutating
// operation runs through the save-or-rollback contract: the engine change
// is kept only if the snapshot write succeeds.
package owner

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/persist"
	"github.com/driftfs/driftfs/pkg/metrics"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// DefaultCacheSize is the number of tenant engines kept hydrated.
const DefaultCacheSize = 128

// tenant is one hydrated engine plus its serialization lock.
type tenant struct {
	mu    sync.Mutex
	store *vfs.Store
}

// Options configure a Pool.
type Options struct {
	// CacheSize caps the number of hydrated tenants. Zero selects
	// DefaultCacheSize.
	CacheSize int

	// Defaults are the filesystem limits applied where a tenant's
	// filesystems specify none.
	Defaults vfs.Limits

	// Hasher hashes tenant passwords. Nil selects bcrypt.
	Hasher vfs.PasswordHasher

	// IDGen generates engine identifiers. Nil selects random UUIDs.
	IDGen vfs.IDGenerator

	// Metrics observes snapshot operations and the tenant cache. Nil
	// selects the registry-backed default, which is a no-op when metrics
	// are disabled.
	Metrics metrics.EngineMetrics
}

// Pool hands out per-owner engines backed by snapshots.
//
// Tenant engines are cached in an LRU and rebuilt from their snapshot on a
// miss; since every mutation is persisted before it is acknowledged, an
// evicted tenant loses nothing. Operations on one tenant are serialized by
// a per-tenant mutex.
type Pool struct {
	persistStore persist.Store
	defaults     vfs.Limits
	hasher       vfs.PasswordHasher
	idgen        vfs.IDGenerator
	metrics      metrics.EngineMetrics

	mu      sync.Mutex
	tenants *lru.Cache[string, *tenant]
}

// NewPool creates a tenant pool over the given snapshot store.
func NewPool(persistStore persist.Store, options Options) (*Pool, error) {
	size := options.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *tenant](size)
	if err != nil {
		return nil, err
	}
	hasher := options.Hasher
	if hasher == nil {
		hasher = vfs.BcryptHasher{}
	}
	idgen := options.IDGen
	if idgen == nil {
		idgen = vfs.UUIDGenerator
	}
	defaults := options.Defaults
	if defaults == (vfs.Limits{}) {
		defaults = vfs.DefaultLimits()
	}
	m := options.Metrics
	if m == nil {
		m = metrics.NewEngineMetrics()
	}
	return &Pool{
		persistStore: persistStore,
		defaults:     defaults,
		hasher:       hasher,
		idgen:        idgen,
		metrics:      m,
		tenants:      cache,
	}, nil
}

// acquire returns the hydrated tenant for owner, loading its snapshot on a
// cache miss. Owners with no snapshot do not exist.
func (p *Pool) acquire(ctx context.Context, ownerName string) (*tenant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tenants.Get(ownerName); ok {
		return t, nil
	}

	start := time.Now()
	snapshot, ok, err := p.persistStore.Load(ctx, ownerName)
	p.metrics.RecordSnapshotLoad(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Unknown owners are served from an empty engine so a login
		// against them fails exactly like a wrong password would. The
		// fallback is never cached: a later bootstrap must not find a
		// stale tenant, and an empty engine is cheap to rebuild.
		return &tenant{store: vfs.NewStore(p.idgen, p.hasher, p.defaults)}, nil
	}
	store := vfs.NewStore(p.idgen, p.hasher, p.defaults)
	if err := store.Restore(snapshot); err != nil {
		return nil, err
	}
	t := &tenant{store: store}
	p.tenants.Add(ownerName, t)
	p.metrics.SetCachedTenants(p.tenants.Len())
	logger.Debug("hydrated tenant %s", ownerName)
	return t, nil
}

// Bootstrap creates a brand-new tenant with one admin user and persists
// its initial snapshot. Fails if the owner already has a snapshot.
func (p *Pool) Bootstrap(ctx context.Context, ownerName, adminName, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tenants.Get(ownerName); ok {
		return &vfs.StoreError{Code: vfs.ErrAlreadyExists, Message: "Too late to bootstrap."}
	}
	_, ok, err := p.persistStore.Load(ctx, ownerName)
	if err != nil {
		return err
	}
	if ok {
		return &vfs.StoreError{Code: vfs.ErrAlreadyExists, Message: "Too late to bootstrap."}
	}

	store := vfs.NewStore(p.idgen, p.hasher, p.defaults)
	if err := store.Bootstrap(adminName, password); err != nil {
		return err
	}
	start := time.Now()
	err = p.persistStore.Save(ctx, ownerName, store.Export())
	p.metrics.RecordSnapshotSave(time.Since(start), err)
	if err != nil {
		return err
	}
	p.tenants.Add(ownerName, &tenant{store: store})
	p.metrics.SetCachedTenants(p.tenants.Len())
	logger.Info("bootstrapped tenant %s", ownerName)
	return nil
}

// View runs a read-only operation against the owner's engine. No snapshot
// is written.
func (p *Pool) View(ctx context.Context, ownerName string, fn func(*vfs.Store) error) error {
	t, err := p.acquire(ctx, ownerName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(t.store)
}

// Do runs a mutating operation against the owner's engine and persists the
// resulting snapshot.
//
// The save-or-rollback contract: if fn fails, nothing is saved (engine
// operations are individually atomic, so a failed fn left no partial
// state). If fn succeeds but the save fails, the engine is rolled back to
// its pre-operation snapshot and the save error is returned, so the
// hydrated state never runs ahead of the persisted state.
func (p *Pool) Do(ctx context.Context, ownerName string, fn func(*vfs.Store) error) error {
	t, err := p.acquire(ctx, ownerName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.store.Export()
	if err := fn(t.store); err != nil {
		return err
	}
	start := time.Now()
	err = p.persistStore.Save(ctx, ownerName, t.store.Export())
	p.metrics.RecordSnapshotSave(time.Since(start), err)
	if err != nil {
		logger.Error("snapshot save failed for tenant %s, rolling back: %v", ownerName, err)
		p.metrics.RecordRollback()
		if restoreErr := t.store.Restore(before); restoreErr != nil {
			logger.Error("rollback failed for tenant %s: %v", ownerName, restoreErr)
		}
		return err
	}
	return nil
}
