package storage

import (
	"encoding/json"
	"time"
)

// Snapshot is the daemon status after one poll cycle.
type Snapshot struct {
	UpdatedAt   time.Time `json:"updated_at"`
	Battery     string    `json:"battery,omitempty"`
	Voltage     float64   `json:"voltage,omitempty"`
	Charging    bool      `json:"charging"`
	Wifi        string    `json:"wifi,omitempty"`
	Bluetooth   string    `json:"bluetooth,omitempty"`
	Audio       string    `json:"audio,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Shutdown    string    `json:"shutdown"`
	InGame      bool      `json:"in_game"`
}

// State encodes the snapshot without its timestamp, for change detection.
func (s Snapshot) State() ([]byte, error) {
	s.UpdatedAt = time.Time{}
	return json.Marshal(s)
}
