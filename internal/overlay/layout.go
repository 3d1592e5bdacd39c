package overlay

import "fmt"

// Anchor values for Layout.
const (
	AnchorLeft   = "left"
	AnchorRight  = "right"
	AnchorTop    = "top"
	AnchorBottom = "bottom"
)

// warningHalf is half the edge of the centred shutdown warning icon.
const warningHalf = 60

// Layout positions icons along one screen edge.
type Layout struct {
	Width      int
	Height     int
	Size       int
	Padding    int
	Horizontal string // left or right
	Vertical   string // top or bottom
}

// Validate checks anchors and sizes.
func (l Layout) Validate() error {
	if l.Horizontal != AnchorLeft && l.Horizontal != AnchorRight {
		return fmt.Errorf("horizontal anchor must be left or right, got %q", l.Horizontal)
	}
	if l.Vertical != AnchorTop && l.Vertical != AnchorBottom {
		return fmt.Errorf("vertical anchor must be top or bottom, got %q", l.Vertical)
	}
	if l.Size <= 0 || l.Padding < 0 {
		return fmt.Errorf("invalid icon size %d or padding %d", l.Size, l.Padding)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("invalid screen size %dx%d", l.Width, l.Height)
	}
	return nil
}

// X returns the x coordinate of the n-th icon, counting from 1.
func (l Layout) X(n int) int {
	if l.Horizontal == AnchorRight {
		return l.Width - (l.Size+l.Padding)*n
	}
	return l.Padding + (l.Size+l.Padding)*(n-1)
}

// Y returns the y coordinate shared by all icons.
func (l Layout) Y() int {
	if l.Vertical == AnchorBottom {
		return l.Height - l.Size - l.Padding
	}
	return l.Padding
}

// Center returns the position of the shutdown warning icon.
func (l Layout) Center() (x, y int) {
	return l.Width/2 - warningHalf, l.Height/2 - warningHalf
}
