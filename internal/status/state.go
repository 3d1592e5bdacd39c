package status

import "github.com/goodtune/pioverlay/internal/overlay"

// deviceState is what the previous cycle rendered, kept only for change
// detection. The zero value means nothing is known and forces a redraw.
type deviceState struct {
	known  bool
	inGame bool
	labels map[overlay.Slot]string
}

func newDeviceState() deviceState {
	return deviceState{labels: make(map[overlay.Slot]string)}
}

func (s *deviceState) reset() {
	*s = newDeviceState()
}

func (s *deviceState) label(slot overlay.Slot) (string, bool) {
	l, ok := s.labels[slot]
	return l, ok
}

func (s *deviceState) set(slot overlay.Slot, label string) {
	s.labels[slot] = label
}
