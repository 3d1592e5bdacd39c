package adc

import (
	"fmt"
	"math"
	"time"

	"tinygo.org/x/drivers"
)

// ADS1115Address is the converter address with ADDR tied to ground.
const ADS1115Address = 0x48

const (
	regConversion = 0x00
	regConfig     = 0x01

	cfgOSSingle   = 1 << 15
	cfgMuxSingle0 = 0x4 << 12
	cfgModeSingle = 1 << 8
	cfgRate128    = 0x4 << 5
	cfgCompQueOff = 0x3

	// 128 samples per second plus margin.
	conversionTime = 9 * time.Millisecond
)

// Gain is a programmable gain amplifier setting.
type Gain struct {
	pga uint16
	lsb float64 // volts per count
}

var gains = []struct {
	factor float64
	gain   Gain
}{
	{2.0 / 3.0, Gain{pga: 0, lsb: 0.0001875}},
	{1, Gain{pga: 1, lsb: 0.000125}},
	{2, Gain{pga: 2, lsb: 0.0000625}},
	{4, Gain{pga: 3, lsb: 0.00003125}},
	{8, Gain{pga: 4, lsb: 0.000015625}},
	{16, Gain{pga: 5, lsb: 0.0000078125}},
}

// ParseGain maps a gain factor (2/3, 1, 2, 4, 8, 16) to a setting. Zero
// selects 2/3, the widest range.
func ParseGain(factor float64) (Gain, error) {
	if factor == 0 {
		return gains[0].gain, nil
	}
	for _, g := range gains {
		if math.Abs(g.factor-factor) < 0.01 {
			return g.gain, nil
		}
	}
	return Gain{}, fmt.Errorf("adc: unsupported ads1115 gain %v", factor)
}

// ADS1115 reads single-ended channels in single-shot mode.
type ADS1115 struct {
	bus  drivers.I2C
	addr uint16
	gain Gain
	w    [3]byte
	r    [2]byte

	sleep func(time.Duration)
}

// NewADS1115 creates a converter on bus.
func NewADS1115(bus drivers.I2C, addr uint16, gain Gain) *ADS1115 {
	return &ADS1115{bus: bus, addr: addr, gain: gain, sleep: time.Sleep}
}

// Read starts a conversion on channel 0-3 and returns the voltage.
func (d *ADS1115) Read(channel int) (float64, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("adc: ads1115 channel %d out of range", channel)
	}

	config := uint16(cfgOSSingle | cfgModeSingle | cfgRate128 | cfgCompQueOff)
	config |= cfgMuxSingle0 + uint16(channel)<<12
	config |= d.gain.pga << 9

	d.w[0] = regConfig
	d.w[1] = byte(config >> 8)
	d.w[2] = byte(config)
	if err := d.bus.Tx(d.addr, d.w[:3], nil); err != nil {
		return 0, fmt.Errorf("adc: ads1115 start conversion: %w", err)
	}

	d.sleep(conversionTime)

	d.w[0] = regConversion
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, fmt.Errorf("adc: ads1115 read conversion: %w", err)
	}
	raw := int16(uint16(d.r[0])<<8 | uint16(d.r[1]))
	return float64(raw) * d.gain.lsb, nil
}
