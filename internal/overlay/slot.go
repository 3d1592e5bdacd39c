package overlay

// Slot names one icon position class. Each slot has at most one live
// renderer process.
type Slot string

const (
	SlotBattery         Slot = "battery"
	SlotWifi            Slot = "wifi"
	SlotBluetooth       Slot = "bluetooth"
	SlotAudio           Slot = "audio"
	SlotUnderVoltage    Slot = "under-voltage"
	SlotFreqCapped      Slot = "freq-capped"
	SlotThrottled       Slot = "throttled"
	SlotShutdownWarning Slot = "shutdown-warning"
)

// EnvironmentSlots are the throttling flag slots in display order.
var EnvironmentSlots = []Slot{SlotUnderVoltage, SlotFreqCapped, SlotThrottled}

// Placement is what a renderer process was started with. Two equal placements
// render identically.
type Placement struct {
	Asset string
	X     int
	Y     int
	Alpha int // 0-255, 255 opaque
}
