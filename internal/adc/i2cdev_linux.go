//go:build linux

package adc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is I2C_SLAVE from linux/i2c-dev.h.
const i2cSlave = 0x0703

// I2CDev is a Linux i2c-dev bus. It implements drivers.I2C.
type I2CDev struct {
	mu   sync.Mutex
	fd   int
	addr int
	path string
}

// OpenI2C opens /dev/i2c-<n>.
func OpenI2C(n int) (Bus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", n)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("adc: open %s: %w", path, err)
	}
	return &I2CDev{fd: fd, addr: -1, path: path}, nil
}

// Tx writes w then reads len(r) bytes from the device at addr.
func (b *I2CDev) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.addr != int(addr) {
		if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("adc: %s select 0x%02x: %w", b.path, addr, err)
		}
		b.addr = int(addr)
	}
	if len(w) > 0 {
		if _, err := unix.Write(b.fd, w); err != nil {
			return fmt.Errorf("adc: %s write 0x%02x: %w", b.path, addr, err)
		}
	}
	if len(r) > 0 {
		n, err := unix.Read(b.fd, r)
		if err != nil {
			return fmt.Errorf("adc: %s read 0x%02x: %w", b.path, addr, err)
		}
		if n != len(r) {
			return fmt.Errorf("adc: %s short read from 0x%02x: %d of %d bytes", b.path, addr, n, len(r))
		}
	}
	return nil
}

// Close releases the bus.
func (b *I2CDev) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
