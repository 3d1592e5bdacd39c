package adc

import (
	"io"

	"tinygo.org/x/drivers"
)

// Bus is an open I2C bus.
type Bus interface {
	drivers.I2C
	io.Closer
}
