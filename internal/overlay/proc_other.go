//go:build !linux

package overlay

import (
	"os"
	"syscall"
)

func childAttr() *syscall.SysProcAttr {
	return nil
}

func killTree(p *os.Process) error {
	return p.Kill()
}
