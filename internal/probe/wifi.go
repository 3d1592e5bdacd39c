package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Wi-Fi labels.
const (
	WifiOff     = "wifi_off"
	WifiWarning = "wifi_warning"
)

// maxLinkQuality is the scale used by most drivers in /proc/net/wireless.
const maxLinkQuality = 70

// Wifi reports the link state of a wireless interface from sysfs and
// /proc/net/wireless.
type Wifi struct {
	Interface string
	SysRoot   string // defaults to /sys
	ProcRoot  string // defaults to /proc
}

// GetState implements Prober.
func (w *Wifi) GetState(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	iface := w.Interface
	if iface == "" {
		iface = "wlan0"
	}

	operstate, err := os.ReadFile(filepath.Join(root(w.SysRoot, "/sys"), "class", "net", iface, "operstate"))
	if os.IsNotExist(err) {
		return State{Label: WifiOff, Info: iface + " missing"}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read %s operstate: %w", iface, err)
	}
	if strings.TrimSpace(string(operstate)) != "up" {
		return State{Label: WifiOff, Info: iface + " down"}, nil
	}

	wireless, err := os.ReadFile(filepath.Join(root(w.ProcRoot, "/proc"), "net", "wireless"))
	if err != nil {
		return State{}, fmt.Errorf("failed to read wireless stats: %w", err)
	}
	quality, signal, ok := parseWireless(wireless, iface)
	if !ok {
		return State{Label: WifiWarning, Info: iface + " not associated"}, nil
	}
	return State{
		Label: wifiBars(quality),
		Info:  fmt.Sprintf("quality %d/%d signal %d dBm", quality, maxLinkQuality, signal),
	}, nil
}

// parseWireless extracts link quality and signal level for iface from the
// /proc/net/wireless table.
func parseWireless(data []byte, iface string) (quality, signal int, ok bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		name, rest, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(name) != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, 0, false
		}
		q, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "."), 64)
		if err != nil {
			return 0, 0, false
		}
		s, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, 0, false
		}
		return int(q), int(s), true
	}
	return 0, 0, false
}

func wifiBars(quality int) string {
	pct := quality * 100 / maxLinkQuality
	switch {
	case pct < 25:
		return "wifi_1_bar"
	case pct < 50:
		return "wifi_2_bar"
	case pct < 75:
		return "wifi_3_bar"
	default:
		return "wifi_4_bar"
	}
}

func root(dir, def string) string {
	if dir == "" {
		return def
	}
	return dir
}
