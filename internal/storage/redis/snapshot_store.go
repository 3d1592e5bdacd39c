package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodtune/pioverlay/internal/storage"
)

// Save stores snap and publishes it on the channel when its state changed.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) (bool, error) {
	state, err := snap.State()
	if err != nil {
		return false, fmt.Errorf("failed to encode state: %w", err)
	}
	message, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	keys := []string{s.key}
	args := []interface{}{
		s.channel,
		string(state),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(message),
	}

	published, err := s.save.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return published == 1, nil
}

// Latest returns the most recently saved snapshot.
func (s *Store) Latest(ctx context.Context) (*storage.Snapshot, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return parseSnapshot(data)
}

var _ storage.SnapshotStore = (*Store)(nil)
