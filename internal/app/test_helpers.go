package app

import (
	"testing"

	"github.com/vk/trainlaunch/internal/registry"
	"github.com/vk/trainlaunch/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. It returns the
// app, its captured stdout and its captured logs.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	out := &testutil.SafeBuffer{}
	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	if cfg.Color == "" {
		cfg.Color = ColorNever
	}
	testApp := NewApp(out, logBuffer, cfg, modules...)
	testutil.DumpLogsOnCleanup(t, logBuffer)

	return testApp, out, logBuffer
}
