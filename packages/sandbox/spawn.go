package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Process is a running worker
type Process interface {
	// Port the worker's websocket listens on
	Port() int
	// Kill stops the worker and everything it started
	Kill() error
	// Wait blocks until the worker has exited
	Wait() error
}

// Spawner starts workers
type Spawner interface {
	Spawn(ctx context.Context, tokenHash []byte) (Process, error)
}

// ExecSpawner starts each worker as a fresh process of the worker binary,
// jailed and unprivileged when configured to be
type ExecSpawner struct {
	Config HostConfig
	Logger logrus.FieldLogger
}

func (s *ExecSpawner) Spawn(ctx context.Context, tokenHash []byte) (Process, error) {
	path := s.Config.WorkerPath
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("find worker binary: %w", err)
		}
		path = exe
	}
	args := append([]string{}, s.Config.WorkerArgs...)
	if len(args) == 0 {
		args = []string{"worker"}
	}
	args = append(args, s.Config.Limits.Args()...)

	cmd := exec.Command(path, args...)
	cmd.Env = []string{TokenHashEnv + "=" + string(tokenHash)}
	cmd.Stderr = os.Stderr
	attr, err := sysProcAttr(s.Config)
	if err != nil {
		return nil, err
	}
	cmd.SysProcAttr = attr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	proc := &execProcess{cmd: cmd}

	startTimeout := s.Config.StartTimeout
	if startTimeout <= 0 {
		startTimeout = DefaultStartTimeout
	}
	port, err := waitForPort(ctx, stdout, startTimeout)
	if err != nil {
		proc.Kill()
		proc.Wait()
		return nil, err
	}
	proc.port = port
	go io.Copy(io.Discard, stdout)

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{"pid": cmd.Process.Pid, "port": port}).Debug("worker started")
	}
	return proc, nil
}

// waitForPort reads the worker announcement, giving up after timeout
func waitForPort(ctx context.Context, r io.Reader, timeout time.Duration) (int, error) {
	type announced struct {
		port int
		err  error
	}
	ch := make(chan announced, 1)
	go func() {
		port, err := ReadListeningPort(r)
		ch <- announced{port, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		if a.err != nil {
			return 0, fmt.Errorf("worker did not announce its port: %w", a.err)
		}
		return a.port, nil
	case <-timer.C:
		return 0, errors.New("worker did not start in time")
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type execProcess struct {
	cmd  *exec.Cmd
	port int

	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) Port() int { return p.port }

func (p *execProcess) Kill() error {
	return killProcessGroup(p.cmd.Process)
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

// Limits are the resource limits a worker applies to itself before
// serving. zero means unlimited.
type Limits struct {
	// AddressSpace in bytes
	AddressSpace uint64
	OpenFiles    uint64
	CPUSeconds   uint64
}

// Args renders the limits as worker command line flags
func (l Limits) Args() []string {
	var args []string
	if l.AddressSpace > 0 {
		args = append(args, "-max-memory", strconv.FormatUint(l.AddressSpace, 10))
	}
	if l.OpenFiles > 0 {
		args = append(args, "-max-files", strconv.FormatUint(l.OpenFiles, 10))
	}
	if l.CPUSeconds > 0 {
		args = append(args, "-max-cpu", strconv.FormatUint(l.CPUSeconds, 10))
	}
	return args
}
