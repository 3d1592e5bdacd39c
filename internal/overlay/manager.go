package overlay

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/pioverlay/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrSpawnFailed is returned when the renderer could not be started. The
// slot is left empty.
var ErrSpawnFailed = errors.New("overlay: renderer failed to start")

// killWait bounds how long Show waits for a killed process to be reaped.
const killWait = 2 * time.Second

// Process is a handle to a running renderer.
type Process interface {
	// Kill terminates the process. It is safe to call on an exited process.
	Kill() error
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// Renderer starts renderer processes.
type Renderer interface {
	Start(pl Placement) (Process, error)
}

type entry struct {
	pl   Placement
	proc Process
}

// Manager maps slots to live renderer processes.
type Manager struct {
	mu       sync.Mutex
	renderer Renderer
	slots    map[Slot]*entry
	logger   zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager(renderer Renderer, logger zerolog.Logger) *Manager {
	return &Manager{
		renderer: renderer,
		slots:    make(map[Slot]*entry),
		logger:   logger.With().Str("component", "overlay").Logger(),
	}
}

// Show makes slot display pl. An identical placement with a live process is a
// no-op; anything else kills the old process before starting the new one.
func (m *Manager) Show(slot Slot, pl Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.slots[slot]; ok {
		if e.pl == pl && alive(e.proc) {
			return nil
		}
		m.stop(slot, e)
	}

	proc, err := m.renderer.Start(pl)
	if err != nil {
		metrics.OverlaySpawnFailures.WithLabelValues(string(slot)).Inc()
		m.logger.Error().
			Err(err).
			Str("slot", string(slot)).
			Str("asset", pl.Asset).
			Msg("Failed to start renderer")
		m.updateGauge()
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, slot, err)
	}

	m.slots[slot] = &entry{pl: pl, proc: proc}
	m.updateGauge()

	m.logger.Debug().
		Str("slot", string(slot)).
		Str("asset", pl.Asset).
		Int("x", pl.X).
		Int("y", pl.Y).
		Int("alpha", pl.Alpha).
		Msg("Overlay shown")
	return nil
}

// Hide kills and forgets the slot's process. No-op if the slot is empty.
func (m *Manager) Hide(slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.slots[slot]; ok {
		m.stop(slot, e)
		m.updateGauge()
	}
}

// Has reports whether slot has a live process.
func (m *Manager) Has(slot Slot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.slots[slot]
	return ok && alive(e.proc)
}

// Current returns the placement shown in slot.
func (m *Manager) Current(slot Slot) (Placement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.slots[slot]
	if !ok {
		return Placement{}, false
	}
	return e.pl, true
}

// Slots lists occupied slots in name order.
func (m *Manager) Slots() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Slot, 0, len(m.slots))
	for s := range m.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close kills every process. Called on daemon exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slot, e := range m.slots {
		m.stop(slot, e)
	}
	m.updateGauge()
}

// stop kills e and waits for it to be reaped. Caller holds m.mu.
func (m *Manager) stop(slot Slot, e *entry) {
	delete(m.slots, slot)
	if err := e.proc.Kill(); err != nil {
		m.logger.Warn().Err(err).Str("slot", string(slot)).Msg("Failed to kill renderer")
	}
	select {
	case <-e.proc.Done():
	case <-time.After(killWait):
		m.logger.Warn().Str("slot", string(slot)).Msg("Renderer did not exit after kill")
	}
}

func (m *Manager) updateGauge() {
	metrics.OverlayProcesses.Set(float64(len(m.slots)))
}

func alive(p Process) bool {
	select {
	case <-p.Done():
		return false
	default:
		return true
	}
}
