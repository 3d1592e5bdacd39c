package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Pull selects the line bias.
type Pull string

const (
	PullUp   Pull = "up"
	PullDown Pull = "down"
	PullNone Pull = "none"
)

// LineConfig identifies one input line on a GPIO character device.
type LineConfig struct {
	Chip   string // e.g. "gpiochip0"
	Offset int    // BCM number on the Raspberry Pi header chip
	Pull   Pull
}

// Line is a GPIO input requested with both-edge detection. Edge events are
// forwarded to the handler installed with SetIRQ.
type Line struct {
	cfg  LineConfig
	line *gpiocdev.Line

	mu      sync.RWMutex
	handler func()
}

// Open requests the line as an input with edge detection enabled.
func Open(cfg LineConfig) (*Line, error) {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	l := &Line{cfg: cfg}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer("pioverlay"),
		gpiocdev.WithEventHandler(l.dispatch),
	}
	switch cfg.Pull {
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case PullNone:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	default:
		opts = append(opts, gpiocdev.WithPullUp)
	}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s line %d: %w", cfg.Chip, cfg.Offset, err)
	}
	l.line = line
	return l, nil
}

// Get reads the current physical level.
func (l *Line) Get() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read %s line %d: %w", l.cfg.Chip, l.cfg.Offset, err)
	}
	return v == 1, nil
}

// SetIRQ installs the edge handler.
func (l *Line) SetIRQ(handler func()) error {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
	return nil
}

// ClearIRQ removes the edge handler. Events are still read but dropped.
func (l *Line) ClearIRQ() error {
	l.mu.Lock()
	l.handler = nil
	l.mu.Unlock()
	return nil
}

// Number returns the line offset.
func (l *Line) Number() int { return l.cfg.Offset }

// Close releases the line.
func (l *Line) Close() error {
	return l.line.Close()
}

func (l *Line) dispatch(gpiocdev.LineEvent) {
	l.mu.RLock()
	h := l.handler
	l.mu.RUnlock()
	if h != nil {
		h()
	}
}
