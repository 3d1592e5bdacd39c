package overlay

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// PngviewConfig configures the pngview renderer.
type PngviewConfig struct {
	Binary  string
	Display int
	Layer   int
}

// Pngview renders icons with pngview on the Raspberry Pi dispmanx layer.
type Pngview struct {
	cfg    PngviewConfig
	logger zerolog.Logger
}

// NewPngview creates a pngview renderer.
func NewPngview(cfg PngviewConfig, logger zerolog.Logger) *Pngview {
	if cfg.Binary == "" {
		cfg.Binary = "/usr/local/bin/pngview"
	}
	if cfg.Layer == 0 {
		cfg.Layer = 15000
	}
	return &Pngview{
		cfg:    cfg,
		logger: logger.With().Str("component", "pngview").Logger(),
	}
}

// Args returns the pngview argument list for pl. Alpha is omitted when
// the icon is opaque.
func (p *Pngview) Args(pl Placement) []string {
	args := []string{
		"-d", strconv.Itoa(p.cfg.Display),
		"-b", "0x0000",
		"-n",
		"-l", strconv.Itoa(p.cfg.Layer),
		"-y", strconv.Itoa(pl.Y),
		"-x", strconv.Itoa(pl.X),
	}
	if pl.Alpha < 255 {
		args = append(args, "-a", strconv.Itoa(pl.Alpha))
	}
	return append(args, pl.Asset)
}

// Start launches pngview and reaps it in the background.
func (p *Pngview) Start(pl Placement) (Process, error) {
	cmd := exec.Command(p.cfg.Binary, p.Args(pl)...)
	cmd.SysProcAttr = childAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.cfg.Binary, err)
	}
	return startReaper(cmd, p.logger), nil
}

type cmdProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	killOnce sync.Once
	killErr  error
}

func startReaper(cmd *exec.Cmd, logger zerolog.Logger) *cmdProcess {
	proc := &cmdProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(proc.done)
		if err != nil {
			logger.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("Renderer exited")
		}
	}()
	return proc
}

func (c *cmdProcess) Kill() error {
	c.killOnce.Do(func() {
		select {
		case <-c.done:
			return
		default:
		}
		if err := killTree(c.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.killErr = err
		}
	})
	return c.killErr
}

func (c *cmdProcess) Done() <-chan struct{} { return c.done }
