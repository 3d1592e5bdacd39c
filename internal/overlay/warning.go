package overlay

// Warning shows the shutdown warning in its own slot.
type Warning struct {
	manager   *Manager
	placement Placement
}

// NewWarning builds a warning for the given asset, centred on screen.
func NewWarning(m *Manager, asset string, layout Layout) *Warning {
	x, y := layout.Center()
	return &Warning{
		manager:   m,
		placement: Placement{Asset: asset, X: x, Y: y, Alpha: 255},
	}
}

// ShowWarning displays the warning.
func (w *Warning) ShowWarning() error {
	return w.manager.Show(SlotShutdownWarning, w.placement)
}

// HideWarning removes the warning.
func (w *Warning) HideWarning() error {
	w.manager.Hide(SlotShutdownWarning)
	return nil
}
