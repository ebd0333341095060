//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the worker in its own process group, chrooted into the
// jail and running as the configured user
func sysProcAttr(cfg HostConfig) (*syscall.SysProcAttr, error) {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if cfg.JailDir != "" {
		attr.Chroot = cfg.JailDir
	}
	cred, err := workerCredential(cfg, os.Geteuid(), user.Lookup)
	if err != nil {
		return nil, err
	}
	attr.Credential = cred
	return attr, nil
}

// workerCredential picks who workers run as. a host that is not root
// already runs unprivileged and its workers run as itself; a root host
// must drop to cfg.User, which may not be root either.
func workerCredential(cfg HostConfig, euid int, lookup func(string) (*user.User, error)) (*syscall.Credential, error) {
	if euid != 0 {
		return nil, nil
	}
	if cfg.User == "" {
		return nil, ErrRootWorker
	}
	u, err := lookup(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("worker user: %w", err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("worker user %s: %w", cfg.User, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("worker user %s: %w", cfg.User, err)
	}
	if uid == 0 {
		return nil, fmt.Errorf("worker user %s: %w", cfg.User, ErrRootWorker)
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}

// killProcessGroup kills the worker and anything it forked
func killProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return p.Kill()
	}
	return nil
}

// ApplyLimits sets the worker's own resource limits
func ApplyLimits(l Limits) error {
	set := func(resource int, value uint64, name string) error {
		if value == 0 {
			return nil
		}
		lim := &unix.Rlimit{Cur: value, Max: value}
		if err := unix.Setrlimit(resource, lim); err != nil {
			return fmt.Errorf("set %s limit: %w", name, err)
		}
		return nil
	}
	if err := set(unix.RLIMIT_AS, l.AddressSpace, "address space"); err != nil {
		return err
	}
	if err := set(unix.RLIMIT_NOFILE, l.OpenFiles, "open files"); err != nil {
		return err
	}
	return set(unix.RLIMIT_CPU, l.CPUSeconds, "cpu")
}
