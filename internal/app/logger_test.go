package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name       string
		level      string
		wantDebug  bool
		wantSource bool
	}{
		{name: "info", level: "info"},
		{name: "debug adds source", level: "debug", wantDebug: true, wantSource: true},
		{name: "unknown level falls back to info", level: "loud"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&Config{ConfigName: "train", LogLevel: tc.level, LogFormat: "json"}, &buf)
			logger.Debug("Hidden unless debugging.")
			logger.Info("Composed.")

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			if tc.wantDebug {
				require.Len(t, lines, 2)
			} else {
				require.Len(t, lines, 1)
			}

			var rec map[string]any
			require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
			assert.Equal(t, "Composed.", rec["msg"])
			assert.Equal(t, "trainlaunch", rec["app"])
			assert.Equal(t, "train", rec["config"])
			if tc.wantSource {
				assert.Regexp(t, `^app/logger_test\.go:\d+$`, rec["source"])
			} else {
				assert.NotContains(t, rec, "source")
			}
		})
	}

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger(&Config{ConfigName: "train", LogLevel: "warn"}, &buf).Warn("Careful.", "job", 1)
		assert.Contains(t, buf.String(), `msg=Careful. app=trainlaunch config=train job=1`)
	})
}
