package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render(t *testing.T) {
	testCases := []struct {
		raw        string
		autoInsert bool
		metrics    map[string]float64
		want       string
	}{
		{raw: "epoch{epoch:06d}", metrics: map[string]float64{"epoch": 12}, want: "epoch000012"},
		{raw: "{epoch:03d}-{val_loss:.4f}", metrics: map[string]float64{"epoch": 3, "val_loss": 0.123456}, want: "003-0.1235"},
		{raw: "{epoch}-{step}", autoInsert: true, metrics: map[string]float64{"epoch": 1, "step": 250}, want: "epoch=1-step=250"},
		{raw: "ckpt-{val/wer:.2f}", metrics: map[string]float64{"val/wer": 0.5}, want: "ckpt-0.50"},
		{raw: "{epoch:6d}", metrics: map[string]float64{"epoch": 7}, want: "     7"},
		{raw: "{x:05d}", metrics: map[string]float64{"x": -7}, want: "-0007"},
		{raw: "static", metrics: nil, want: "static"},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			tpl, err := ParseTemplate(tc.raw, tc.autoInsert)
			require.NoError(t, err)
			got, err := tpl.Render(tc.metrics)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			back, ok := tpl.Match(got)
			require.True(t, ok)
			for _, f := range tpl.Fields() {
				assert.InDelta(t, tc.metrics[f], back[f], 1e-3)
			}
		})
	}
}

func TestTemplate_Errors(t *testing.T) {
	for _, raw := range []string{"", "{epoch:x}", "{epoch:.2d}", "{}", "epoch{epoch"} {
		_, err := ParseTemplate(raw, false)
		assert.Error(t, err, raw)
	}

	tpl, err := ParseTemplate("{epoch:03d}", false)
	require.NoError(t, err)
	_, err = tpl.Render(map[string]float64{})
	assert.Error(t, err)
	_, err = tpl.Render(map[string]float64{"epoch": 1.5})
	assert.Error(t, err)

	_, ok := tpl.Match("abc")
	assert.False(t, ok)
}

func touch(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
	return p
}

func TestBestAndLast(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	touch(t, dir, "epoch000001-0.9000.ckpt", base)
	best := touch(t, dir, "epoch000002-0.4000.ckpt", base.Add(time.Minute))
	newest := touch(t, dir, "epoch000003-0.5000.ckpt", base.Add(2*time.Minute))
	touch(t, dir, "notes.txt", base)
	touch(t, dir, "other.ckpt", base.Add(time.Hour))

	tpl, err := ParseTemplate("epoch{epoch:06d}-{val_loss:.4f}", false)
	require.NoError(t, err)

	cks, err := Find(dir, tpl)
	require.NoError(t, err)
	assert.Len(t, cks, 3)

	c, err := Best(dir, tpl, "val_loss", ModeMin)
	require.NoError(t, err)
	assert.Equal(t, best, c.Path)

	c, err = Best(dir, tpl, "val_loss", ModeMax)
	require.NoError(t, err)
	assert.Equal(t, 0.9, c.Metrics["val_loss"])

	c, err = Best(dir, tpl, "val_wer", ModeMin)
	require.NoError(t, err)
	assert.Equal(t, newest, c.Path, "unknown monitor falls back to the latest epoch")

	c, err = Last(dir, tpl)
	require.NoError(t, err)
	assert.Equal(t, newest, c.Path)

	last := touch(t, dir, "last.ckpt", base)
	c, err = Last(dir, tpl)
	require.NoError(t, err)
	assert.Equal(t, last, c.Path)

	_, err = Best(t.TempDir(), tpl, "val_loss", ModeMin)
	require.ErrorIs(t, err, ErrNoCheckpoint)
	_, err = Best(filepath.Join(dir, "missing"), tpl, "", ModeMin)
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestBest_NaN(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tpl, err := ParseTemplate("epoch{epoch:06d}-{val_loss:.4f}", false)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		files []string
		mode  Mode
		want  string
	}{
		{name: "nan first, min", files: []string{"epoch000001-nan", "epoch000002-0.5000", "epoch000003-0.7000"}, mode: ModeMin, want: "epoch000002-0.5000"},
		{name: "nan first, max", files: []string{"epoch000001-nan", "epoch000002-0.5000", "epoch000003-0.7000"}, mode: ModeMax, want: "epoch000003-0.7000"},
		{name: "nan in the middle", files: []string{"epoch000001-0.9000", "epoch000002-nan", "epoch000003-0.8000"}, mode: ModeMin, want: "epoch000003-0.8000"},
		{name: "nan last", files: []string{"epoch000001-0.9000", "epoch000002-nan"}, mode: ModeMax, want: "epoch000001-0.9000"},
		{name: "only nan picks the latest", files: []string{"epoch000001-nan", "epoch000002-nan"}, mode: ModeMin, want: "epoch000002-nan"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for i, f := range tc.files {
				touch(t, dir, f+Extension, base.Add(time.Duration(i)*time.Minute))
			}
			c, err := Best(dir, tpl, "val_loss", tc.mode)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tc.want+Extension), c.Path)
		})
	}
}

func TestRef(t *testing.T) {
	r, ok := ParseRef("best:logs/run/checkpoints")
	require.True(t, ok)
	assert.Equal(t, Ref{Kind: "best", Dir: "logs/run/checkpoints"}, r)

	for _, s := range []string{"model.ckpt", "best:", "first:dir", "/abs/path.ckpt"} {
		_, ok := ParseRef(s)
		assert.False(t, ok, s)
	}

	dir := t.TempDir()
	p := touch(t, dir, "epoch000004.ckpt", time.Now())
	tpl, err := ParseTemplate("epoch{epoch:06d}", false)
	require.NoError(t, err)
	got, err := Ref{Kind: "last", Dir: dir}.Resolve(tpl, "", ModeMin)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMin, mode)
	_, err = ParseMode("avg")
	assert.Error(t, err)
}
