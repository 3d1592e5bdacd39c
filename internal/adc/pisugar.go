package adc

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// PiSugar3Address is the PiSugar 3 controller address.
const PiSugar3Address = 0x57

const regBatteryMillivolts = 0x22

// PiSugar3 reads the battery voltage reported by a PiSugar 3 UPS.
type PiSugar3 struct {
	bus  drivers.I2C
	addr uint16
	w    [1]byte
	r    [2]byte
}

// NewPiSugar3 creates a reader on bus.
func NewPiSugar3(bus drivers.I2C, addr uint16) *PiSugar3 {
	return &PiSugar3{bus: bus, addr: addr}
}

// Read returns the battery voltage. The channel is ignored.
func (d *PiSugar3) Read(int) (float64, error) {
	d.w[0] = regBatteryMillivolts
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, fmt.Errorf("adc: pisugar3 read: %w", err)
	}
	mv := uint16(d.r[0]) | uint16(d.r[1])<<8
	return float64(mv) / 1000, nil
}
