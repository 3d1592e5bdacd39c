//go:build linux

package adc

import (
	"strings"
	"testing"
)

func TestOpenI2CMissingBus(t *testing.T) {
	if _, err := OpenI2C(250); err == nil {
		t.Fatal("expected error for missing bus")
	}
}

func TestI2CDevTxSelectsAddress(t *testing.T) {
	if i2cSlave != 0x0703 {
		t.Fatalf("i2cSlave = %#x, want 0x0703", i2cSlave)
	}

	// A closed descriptor fails at the address select ioctl.
	b := &I2CDev{fd: -1, addr: -1, path: "/dev/i2c-test"}
	err := b.Tx(0x48, []byte{0x00}, make([]byte, 2))
	if err == nil {
		t.Fatal("expected error on a closed bus")
	}
	if !strings.Contains(err.Error(), "select 0x48") {
		t.Errorf("err = %v, want address select failure", err)
	}
	if b.addr != -1 {
		t.Errorf("addr = %d, want unchanged after failed select", b.addr)
	}
}
