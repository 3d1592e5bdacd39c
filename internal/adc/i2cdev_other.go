//go:build !linux

package adc

import "errors"

// OpenI2C is only supported on Linux.
func OpenI2C(int) (Bus, error) {
	return nil, errors.New("adc: i2c-dev requires linux")
}
