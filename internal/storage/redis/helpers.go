package redis

import (
	"encoding/json"
	"fmt"

	"github.com/goodtune/pioverlay/internal/storage"
)

// parseSnapshot converts a Redis hash to Snapshot
func parseSnapshot(data map[string]string) (*storage.Snapshot, error) {
	raw, ok := data["json"]
	if !ok || raw == "" {
		return nil, storage.ErrNotFound
	}

	var snap storage.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
