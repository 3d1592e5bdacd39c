//go:build linux

package overlay

import (
	"errors"
	"os"
	"syscall"
)

// childAttr puts the renderer in its own process group and makes the kernel
// kill it if the daemon dies first.
func childAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}

// killTree kills the renderer's process group, falling back to the process
// alone when it does not lead a group.
func killTree(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return p.Kill()
	}
	return err
}
