package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// SnapshotStore keeps the latest daemon status and announces changes.
type SnapshotStore interface {
	// Save stores snap and reports whether it differed from the stored
	// one, in which case it was also published.
	Save(ctx context.Context, snap Snapshot) (published bool, err error)
	Latest(ctx context.Context) (*Snapshot, error)
	Close() error
}
