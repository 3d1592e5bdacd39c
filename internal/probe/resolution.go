package probe

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Default screen size when nothing can be detected.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

var tvserviceRe = regexp.MustCompile(`(\d{3,})x(\d{3,})`)

// Resolution discovers the screen size.
type Resolution struct {
	Override        string // "WxH", wins when set
	FramebufferPath string // defaults to /sys/class/graphics/fb0/virtual_size
	Run             Runner
}

// Detect returns width, height and where they came from. It never fails;
// the last resort is 1920x1080.
func (r *Resolution) Detect(ctx context.Context) (width, height int, source string) {
	if r.Override != "" {
		if w, h, err := ParseSize(r.Override); err == nil {
			return w, h, "config"
		}
	}

	fb := r.FramebufferPath
	if fb == "" {
		fb = "/sys/class/graphics/fb0/virtual_size"
	}
	if data, err := os.ReadFile(fb); err == nil {
		if w, h, err := parsePair(strings.TrimSpace(string(data)), ","); err == nil {
			return w, h, "framebuffer"
		}
	}

	run := r.Run
	if run == nil {
		run = ExecRunner
	}
	if out, err := run(ctx, "tvservice", "-s"); err == nil {
		if m := tvserviceRe.FindSubmatch(out); m != nil {
			w, _ := strconv.Atoi(string(m[1]))
			h, _ := strconv.Atoi(string(m[2]))
			return w, h, "tvservice"
		}
	}
	return DefaultWidth, DefaultHeight, "default"
}

// ParseSize parses "WxH".
func ParseSize(s string) (width, height int, err error) {
	return parsePair(s, "x")
}

func parsePair(s, sep string) (int, int, error) {
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return w, h, nil
}
