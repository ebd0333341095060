//go:build !linux

package sandbox

import (
	"errors"
	"os"
	"syscall"
)

func sysProcAttr(cfg HostConfig) (*syscall.SysProcAttr, error) {
	if cfg.JailDir != "" {
		return nil, errors.New("worker jails are only supported on linux")
	}
	if os.Geteuid() == 0 {
		return nil, ErrRootWorker
	}
	return nil, nil
}

func killProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// ApplyLimits is a no-op outside linux
func ApplyLimits(Limits) error {
	return nil
}
