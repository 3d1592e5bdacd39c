package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// DefaultGameProcess is the emulator frontend whose presence means a game
// is in the foreground.
const DefaultGameProcess = "retroarch"

// GameDetector looks for a running process whose name contains Name,
// ignoring case.
type GameDetector struct {
	name string
	fs   procfs.FS
}

// NewGameDetector scans the proc filesystem mounted at procRoot.
func NewGameDetector(name, procRoot string) (*GameDetector, error) {
	if name == "" {
		name = DefaultGameProcess
	}
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", procRoot, err)
	}
	return &GameDetector{name: strings.ToLower(name), fs: fs}, nil
}

// Running reports whether a matching process exists. Processes that exit
// mid-scan are skipped.
func (g *GameDetector) Running(ctx context.Context) (bool, error) {
	procs, err := g.fs.AllProcs()
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		comm, err := p.Comm()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(comm), g.name) {
			return true, nil
		}
	}
	return false, nil
}
