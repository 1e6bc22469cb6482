package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/testutil"
	"gopkg.in/yaml.v3"
)

// sampleConfigs is the configuration tree shipped with the repository.
var sampleConfigs = filepath.Join("..", "..", "configs")

func newSampleConfig(t *testing.T, cfg Config) *Config {
	t.Helper()
	cfg.ConfigDirs = []string{sampleConfigs}
	c, err := NewConfig(cfg)
	require.NoError(t, err)
	return c
}

func TestApp_PrintJobConfig(t *testing.T) {
	cfg := newSampleConfig(t, Config{Cfg: CfgJob, Overrides: []string{"data.batch_size=32", "trainer=gpu"}})
	a, out, _ := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out.String()), &doc))
	assert.NotContains(t, doc, "hydra")
	data := doc["data"].(map[string]any)
	assert.Equal(t, 32, data["batch_size"])
	trainer := doc["trainer"].(map[string]any)
	assert.Equal(t, "gpu", trainer["accelerator"])
	// Unresolved output keeps interpolations as written.
	assert.Equal(t, "${paths.data_dir}", data["data_dir"])
}

func TestApp_PrintResolvedAll(t *testing.T) {
	cfg := newSampleConfig(t, Config{Cfg: CfgAll, Resolve: true, Overrides: []string{"paths.root_dir=/srv/hwr"}})
	a, out, _ := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out.String()), &doc))
	data := doc["data"].(map[string]any)
	assert.Equal(t, "/srv/hwr/data/", data["data_dir"])

	hydra := doc["hydra"].(map[string]any)
	runtime := hydra["runtime"].(map[string]any)
	assert.True(t, strings.HasPrefix(runtime["output_dir"].(string), "/srv/hwr/logs/train/runs/"))
	job := hydra["job"].(map[string]any)
	assert.Equal(t, "train", job["name"])
	assert.Len(t, job["config_digest"], 64)

	paths := doc["paths"].(map[string]any)
	assert.Equal(t, runtime["output_dir"], paths["output_dir"])
}

func TestApp_DryRunMultirun(t *testing.T) {
	cfg := newSampleConfig(t, Config{
		DryRun:    true,
		Multirun:  true,
		Overrides: []string{"data.limit=-1,10", "paths.root_dir=/srv/hwr"},
	})
	a, out, _ := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#0 /srv/hwr/logs/train/multiruns/"))
	assert.Contains(t, lines[0], "data.limit=-1")
	assert.True(t, strings.HasPrefix(lines[1], "#1 "))
	assert.Contains(t, lines[1], "data.limit=10")
}

func TestApp_SweepWithoutMultirun(t *testing.T) {
	cfg := newSampleConfig(t, Config{DryRun: true, Overrides: []string{"data.limit=-1,10"}})
	a, _, _ := SetupAppTest(t, cfg)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multirun")
}

func TestApp_InvalidTargetArgs(t *testing.T) {
	cfg := newSampleConfig(t, Config{Cfg: CfgJob, Overrides: []string{"model.dropout=1.5"}})
	a, _, _ := SetupAppTest(t, cfg)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropout")
}

func TestApp_ChannelsFollowDataset(t *testing.T) {
	testCases := []struct {
		name         string
		overrides    []string
		wantErr      string
		wantChannels int
	}{
		{name: "default dataset", wantChannels: 2},
		{name: "xournal with the default model", overrides: []string{"data=xournal"}, wantErr: "number_of_channels is 2"},
		{name: "xournal experiment", overrides: []string{"experiment=xournal_xyn"}, wantChannels: 3},
		{name: "xytn experiment", overrides: []string{"experiment=carbune2020_xytn"}, wantChannels: 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newSampleConfig(t, Config{Cfg: CfgJob, Overrides: tc.overrides})
			a, out, _ := SetupAppTest(t, cfg)

			err := a.Run(context.Background())
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			var doc map[string]any
			require.NoError(t, yaml.Unmarshal([]byte(out.String()), &doc))
			model := doc["model"].(map[string]any)
			assert.Equal(t, tc.wantChannels, model["number_of_channels"])
		})
	}
}

func TestApp_RunWritesJobFiles(t *testing.T) {
	logDir := t.TempDir()
	cfg := newSampleConfig(t, Config{Overrides: []string{"paths.log_dir=" + logDir, "logger=csv"}})
	a, out, logs := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, out.String(), "# job 0: "+filepath.Join(logDir, "train", "runs"))
	assert.Contains(t, out.String(), "_target_: lightning.pytorch.loggers.csv_logs.CSVLogger")

	matches, err := filepath.Glob(filepath.Join(logDir, "train", "runs", "*", ".hydra", "config.yaml"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	written, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.NotContains(t, string(written), "${")

	overrides, err := os.ReadFile(filepath.Join(filepath.Dir(matches[0]), "overrides.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(overrides), "logger=csv")

	assert.FileExists(t, filepath.Join(logDir, "runs.sqlite"))
	assert.Contains(t, logs.String(), "Succeeded with return value.")
	assert.Equal(t, "jobs=1 completed=1 failed=0 running=none", a.status.String())
}

func TestApp_HealthHandler(t *testing.T) {
	cfg := newSampleConfig(t, Config{})
	a, _, _ := SetupAppTest(t, cfg)

	rec := httptest.NewRecorder()
	a.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\njobs=0 completed=0 failed=0 running=none\n", rec.Body.String())
}

func TestApp_WatchReprints(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{
		"train.yaml":      "defaults:\n  - data: small\n  - _self_\nseed: 1\n",
		"data/small.yaml": "batch_size: 8\n",
	})
	cfg, err := NewConfig(Config{ConfigDirs: []string{dir}, Cfg: CfgJob, Watch: true})
	require.NoError(t, err)
	a, out, _ := SetupAppTest(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "batch_size: 8")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "small.yaml"), []byte("batch_size: 16\n"), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "batch_size: 16")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv(ConfigDirEnv, "")
		cfg, err := NewConfig(Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultConfigName, cfg.ConfigName)
		assert.Equal(t, []string{DefaultConfigDir}, cfg.ConfigDirs)
		assert.Equal(t, ColorAuto, cfg.Color)
	})

	t.Run("dirs from env", func(t *testing.T) {
		t.Setenv(ConfigDirEnv, strings.Join([]string{"a", "b"}, string(os.PathListSeparator)))
		cfg, err := NewConfig(Config{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, cfg.ConfigDirs)
	})

	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "absolute name", cfg: Config{ConfigName: "/etc/train"}, wantErr: "must be relative"},
		{name: "bad cfg", cfg: Config{Cfg: "some"}, wantErr: "invalid cfg"},
		{name: "resolve alone", cfg: Config{Resolve: true}, wantErr: "resolve only applies"},
		{name: "watch alone", cfg: Config{Watch: true}, wantErr: "watch requires"},
		{name: "bad color", cfg: Config{Color: "blue"}, wantErr: "invalid color"},
		{name: "bad port", cfg: Config{HealthcheckPort: -5}, wantErr: "invalid healthcheck port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(tc.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
