package overlay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrMissingAsset is returned when an icon file does not exist.
var ErrMissingAsset = errors.New("overlay: icon asset missing")

const iconCacheSize = 128

// Icons resolves icon names to asset paths, caching the lookups so the poll
// loop does not stat the same files every cycle.
type Icons struct {
	dir   string
	size  int
	cache *lru.Cache[string, string]
	stat  func(string) (os.FileInfo, error)
}

// NewIcons creates a resolver for icons of the given pixel size in dir.
func NewIcons(dir string, size int) (*Icons, error) {
	cache, err := lru.New[string, string](iconCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create icon cache: %w", err)
	}
	return &Icons{dir: dir, size: size, cache: cache, stat: os.Stat}, nil
}

// Battery returns the asset for a battery level label.
func (i *Icons) Battery(label string) (string, error) {
	if label == "alert_red" {
		return i.resolve(fmt.Sprintf("battery-alert_%d.png", i.size))
	}
	return i.resolve(fmt.Sprintf("ic_battery_%s_black_%ddp.png", label, i.size))
}

// Device returns the asset for a wifi, bluetooth or audio state label.
func (i *Icons) Device(label string) (string, error) {
	return i.resolve(fmt.Sprintf("%s_%d.png", label, i.size))
}

// Environment returns the asset for a throttling flag slot.
func (i *Icons) Environment(slot Slot) (string, error) {
	var base string
	switch slot {
	case SlotUnderVoltage:
		base = "flash"
	case SlotFreqCapped:
		base = "thermometer"
	case SlotThrottled:
		base = "thermometer-lines"
	default:
		return "", fmt.Errorf("%s is not an environment slot", slot)
	}
	return i.resolve(fmt.Sprintf("%s_%d.png", base, i.size))
}

// Warning returns the asset for the centred shutdown warning.
func (i *Icons) Warning() (string, error) {
	return i.resolve("battery_critical_shutdown.png")
}

func (i *Icons) resolve(name string) (string, error) {
	if path, ok := i.cache.Get(name); ok {
		return path, nil
	}
	path := filepath.Join(i.dir, name)
	if _, err := i.stat(path); err != nil {
		return path, fmt.Errorf("%w: %s", ErrMissingAsset, path)
	}
	i.cache.Add(name, path)
	return path, nil
}

// Purge drops cached lookups, e.g. after icons were installed.
func (i *Icons) Purge() {
	i.cache.Purge()
}
