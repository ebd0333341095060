package main

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/go-spreadsheet/packages/sandbox"
)

func fakeEnv(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func TestLoadEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadEnv(fakeEnv(map[string]string{
		"SPREADSHEET_DB":          "/var/lib/sheets.db",
		"SPREADSHEET_JAIL":        "/srv/jail",
		"SPREADSHEET_WORKER_USER": "nobody",
		"SPREADSHEET_TIMEOUT":     "30",
		"SPREADSHEET_GRACE":       "1500ms",
		"SPREADSHEET_WORKERS":     "4",
		"SPREADSHEET_LOG_LEVEL":   "debug",
		"SPREADSHEET_UNSANDBOXED": "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/sheets.db", cfg.DBPath)
	assert.Equal(t, "/srv/jail", cfg.JailDir)
	assert.Equal(t, "nobody", cfg.WorkerUser)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Grace)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Unsandboxed)
}

func TestLoadEnvKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadEnv(fakeEnv(nil)))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEnvErrors(t *testing.T) {
	testCases := map[string]string{
		"SPREADSHEET_TIMEOUT":     "soon",
		"SPREADSHEET_GRACE":       "-",
		"SPREADSHEET_WORKERS":     "many",
		"SPREADSHEET_UNSANDBOXED": "maybe",
	}
	for name, value := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.LoadEnv(fakeEnv(map[string]string{name: value}))
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadEnv(fakeEnv(map[string]string{"SPREADSHEET_DB": "env.db", "SPREADSHEET_WORKERS": "4"})))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-db", "flag.db", "-timeout", "2s"}))
	assert.Equal(t, "flag.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
}

func TestDefaultConfigDropsPrivileges(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nobody", cfg.WorkerUser)
	assert.False(t, cfg.Unsandboxed)
	assert.Equal(t, "nobody", cfg.HostConfig().User)
}

func TestHostConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JailDir = "/srv/jail"
	cfg.WorkerUser = "nobody"
	cfg.WorkerPath = "/spreadsheet"
	cfg.Workers = 3
	cfg.MaxCPU = 90

	assert.Equal(t, sandbox.HostConfig{
		WorkerPath: "/spreadsheet",
		WorkerArgs: []string{"worker", "-workers", "3"},
		JailDir:    "/srv/jail",
		User:       "nobody",
		Limits:     sandbox.Limits{AddressSpace: 2 << 30, OpenFiles: 64, CPUSeconds: 90},
		Grace:      sandbox.DefaultGrace,
	}, cfg.HostConfig())
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	logger, err := cfg.NewLogger(io.Discard)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger(io.Discard)
	assert.Error(t, err)
}
