package overlay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestIconsResolve(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"battery-alert_48.png",
		"ic_battery_80_black_48dp.png",
		"wifi_3_bar_48.png",
		"thermometer-lines_48.png",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	icons, err := NewIcons(dir, 48)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"alert red", func() (string, error) { return icons.Battery("alert_red") }, "battery-alert_48.png"},
		{"battery level", func() (string, error) { return icons.Battery("80") }, "ic_battery_80_black_48dp.png"},
		{"device", func() (string, error) { return icons.Device("wifi_3_bar") }, "wifi_3_bar_48.png"},
		{"environment", func() (string, error) { return icons.Environment(SlotThrottled) }, "thermometer-lines_48.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != filepath.Join(dir, tt.want) {
				t.Errorf("path = %q, want %q", got, filepath.Join(dir, tt.want))
			}
		})
	}

	if _, err := icons.Device("bluetooth"); !errors.Is(err, ErrMissingAsset) {
		t.Errorf("missing icon err = %v, want ErrMissingAsset", err)
	}
	if _, err := icons.Environment(SlotWifi); err == nil {
		t.Error("expected error for non-environment slot")
	}
}

func TestIconsCachesLookups(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wifi_24.png"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	icons, err := NewIcons(dir, 24)
	if err != nil {
		t.Fatal(err)
	}

	stats := 0
	icons.stat = func(p string) (os.FileInfo, error) {
		stats++
		return os.Stat(p)
	}
	for i := 0; i < 5; i++ {
		if _, err := icons.Device("wifi"); err != nil {
			t.Fatal(err)
		}
	}
	if stats != 1 {
		t.Errorf("stat called %d times, want 1", stats)
	}

	icons.Purge()
	if _, err := icons.Device("wifi"); err != nil {
		t.Fatal(err)
	}
	if stats != 2 {
		t.Errorf("stat called %d times after purge, want 2", stats)
	}
}
