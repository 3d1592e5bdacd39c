// Package adc reads battery voltage from the supported converters.
package adc

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind names a voltage source.
type Kind string

const (
	KindADS1115  Kind = "ads1115"
	KindPiSugar3 Kind = "pisugar3"
	KindSerial   Kind = "serial"
)

// ErrUnknownKind is returned by Open for an unsupported source.
var ErrUnknownKind = errors.New("adc: unknown source kind")

// Reader returns a voltage in volts for a channel. Sources with a single
// input ignore the channel.
type Reader interface {
	Read(channel int) (float64, error)
}

// Source is a Reader holding an open device.
type Source interface {
	Reader
	io.Closer
}

// Config selects and configures a voltage source.
type Config struct {
	Kind    Kind
	Gain    float64
	I2CBus  int
	Address uint16

	SerialDevice string
	BaudRate     int
	ReadTimeout  time.Duration
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindADS1115, KindPiSugar3, KindSerial:
		return true
	}
	return false
}

// Open opens the configured source.
func Open(cfg Config) (Source, error) {
	switch cfg.Kind {
	case KindADS1115:
		gain, err := ParseGain(cfg.Gain)
		if err != nil {
			return nil, err
		}
		bus, err := OpenI2C(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		addr := cfg.Address
		if addr == 0 {
			addr = ADS1115Address
		}
		return &i2cSource{Reader: NewADS1115(bus, addr, gain), bus: bus}, nil

	case KindPiSugar3:
		bus, err := OpenI2C(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		addr := cfg.Address
		if addr == 0 {
			addr = PiSugar3Address
		}
		return &i2cSource{Reader: NewPiSugar3(bus, addr), bus: bus}, nil

	case KindSerial:
		s, err := OpenSerial(cfg.SerialDevice, cfg.BaudRate, cfg.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
}

type i2cSource struct {
	Reader
	bus io.Closer
}

func (s *i2cSource) Close() error { return s.bus.Close() }
