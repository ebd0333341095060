package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/sandbox"
)

// Config holds everything a command needs to open sheets and run them
type Config struct {
	// DBPath is the sqlite database holding the sheets
	DBPath string

	// JailDir, when set, is the chroot every worker runs in
	JailDir    string
	WorkerUser string
	// WorkerPath is the worker binary. defaults to this executable.
	WorkerPath string
	// Unsandboxed calculates in-process instead of in workers
	Unsandboxed bool

	// Timeout is given to new sheets
	Timeout time.Duration
	Grace   time.Duration
	// Workers bounds concurrent cell evaluations in one calculation
	Workers int

	// worker rlimits, zero for none
	MaxMemory uint64
	MaxFiles  uint64
	MaxCPU    uint64

	LogLevel string
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		DBPath:     "spreadsheet.db",
		WorkerUser: sandbox.DefaultWorkerUser,
		Timeout:    sandbox.DefaultTimeout,
		Grace:      sandbox.DefaultGrace,
		Workers:    10,
		MaxMemory:  2 << 30,
		MaxFiles:   64,
		LogLevel:   "info",
	}
}

// LoadEnv overrides the configuration from SPREADSHEET_* variables
func (c *Config) LoadEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str("SPREADSHEET_DB", &c.DBPath)
	str("SPREADSHEET_JAIL", &c.JailDir)
	str("SPREADSHEET_WORKER_USER", &c.WorkerUser)
	str("SPREADSHEET_WORKER_PATH", &c.WorkerPath)
	str("SPREADSHEET_LOG_LEVEL", &c.LogLevel)

	if v := getenv("SPREADSHEET_UNSANDBOXED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPREADSHEET_UNSANDBOXED: %w", err)
		}
		c.Unsandboxed = b
	}
	for name, dst := range map[string]*time.Duration{
		"SPREADSHEET_TIMEOUT": &c.Timeout,
		"SPREADSHEET_GRACE":   &c.Grace,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}
	if v := getenv("SPREADSHEET_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPREADSHEET_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// parseSeconds accepts a Go duration or a bare number of seconds
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// RegisterFlags binds the shared flags to c, with c's current values as
// defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "sqlite database holding the sheets")
	fs.StringVar(&c.JailDir, "jail", c.JailDir, "chroot directory for workers")
	fs.StringVar(&c.WorkerUser, "worker-user", c.WorkerUser, "user the workers run as when started by root")
	fs.StringVar(&c.WorkerPath, "worker-path", c.WorkerPath, "worker binary (default: this executable)")
	fs.BoolVar(&c.Unsandboxed, "unsandboxed", c.Unsandboxed, "calculate in-process, without workers")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "calculation timeout of new sheets")
	fs.DurationVar(&c.Grace, "grace", c.Grace, "time past the timeout before a worker is killed")
	fs.IntVar(&c.Workers, "workers", c.Workers, "concurrent cell evaluations per calculation")
	fs.Uint64Var(&c.MaxMemory, "max-memory", c.MaxMemory, "worker address space limit in bytes")
	fs.Uint64Var(&c.MaxFiles, "max-files", c.MaxFiles, "worker open file limit")
	fs.Uint64Var(&c.MaxCPU, "max-cpu", c.MaxCPU, "worker cpu time limit in seconds")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

// HostConfig derives the sandbox configuration
func (c Config) HostConfig() sandbox.HostConfig {
	return sandbox.HostConfig{
		WorkerPath: c.WorkerPath,
		WorkerArgs: []string{"worker", "-workers", strconv.Itoa(c.Workers)},
		JailDir:    c.JailDir,
		User:       c.WorkerUser,
		Limits: sandbox.Limits{
			AddressSpace: c.MaxMemory,
			OpenFiles:    c.MaxFiles,
			CPUSeconds:   c.MaxCPU,
		},
		Grace: c.Grace,
	}
}

// NewLogger returns a text logger writing to w at the configured level
func (c Config) NewLogger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}
