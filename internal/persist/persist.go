// Package persist stores tenant snapshots.
//
// Each tenant (owner) dumps its complete engine state as one vfs.Snapshot;
// a persist.Store keeps one snapshot per owner and knows nothing about the
// snapshot's internals. Implementations cover in-memory (tests), a JSON
// file per owner on local disk, BadgerDB, and S3-compatible object storage.
package persist

import (
	"context"
	"fmt"
	"regexp"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// Store persists one snapshot per owner.
//
// Load returns ok=false when the owner has never been saved; that is not an
// error. Save replaces the owner's snapshot atomically: a snapshot is either
// fully written or the previous one remains readable.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	Load(ctx context.Context, owner string) (snapshot *vfs.Snapshot, ok bool, err error)
	Save(ctx context.Context, owner string, snapshot *vfs.Snapshot) error
	Close() error
}

// ownerPattern restricts owner names to filename- and key-safe characters.
// Owner names come straight from request URLs, so this is what keeps a
// crafted owner from escaping a directory or key prefix.
var ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ValidOwner reports whether owner is a well-formed owner name.
func ValidOwner(owner string) bool {
	if owner == "." || owner == ".." {
		return false
	}
	return ownerPattern.MatchString(owner)
}

// checkOwner is the shared guard used by every backend.
func checkOwner(owner string) error {
	if !ValidOwner(owner) {
		return fmt.Errorf("invalid owner name: %q", owner)
	}
	return nil
}
