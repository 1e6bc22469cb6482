package torch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/registry"
)

func setup(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	require.NoError(t, r.Check(context.Background()))
	return r
}

func decode(t *testing.T, src string) *config.Node {
	t.Helper()
	n, err := config.DecodeYAML([]byte(src), "test.yaml")
	require.NoError(t, err)
	return n
}

func TestAdam(t *testing.T) {
	r := setup(t)

	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "partial with defaults", src: "_target_: torch.optim.Adam\n_partial_: true\nlr: 0.001\nweight_decay: 0.0"},
		{name: "complete", src: "_target_: torch.optim.Adam\nlr: 0.01\nbetas: [0.8, 0.99]\namsgrad: true"},
		{name: "negative lr", src: "_target_: torch.optim.Adam\nlr: -1", wantErr: "invalid learning rate"},
		{name: "bad beta", src: "_target_: torch.optim.Adam\nbetas: [0.9, 1.5]", wantErr: "invalid beta parameter at index 1"},
		{name: "one beta", src: "_target_: torch.optim.Adam\nbetas: [0.9]", wantErr: "betas must have 2 entries"},
		{name: "unknown key", src: "_target_: torch.optim.Adam\nmomentum: 0.9", wantErr: "unknown argument 'momentum'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(context.Background(), decode(t, tc.src), true)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, registry.ErrInvalidTargetArgs)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestAdam_PartialCall(t *testing.T) {
	r := setup(t)
	obj, err := r.Instantiate(context.Background(), decode(t, "_target_: torch.optim.Adam\n_partial_: true\nlr: 0.005"))
	require.NoError(t, err)

	p, ok := obj.(*registry.Partial)
	require.True(t, ok)
	out, err := p.Call(context.Background(), map[string]any{"params": []any{"layer1", "layer2"}})
	require.NoError(t, err)

	params := out.(*AdamParams)
	assert.Equal(t, 0.005, params.LR)
	assert.Equal(t, []float64{0.9, 0.999}, params.Betas)
	assert.Equal(t, 2, params.Params.LengthInt())
}

func TestReduceLROnPlateau(t *testing.T) {
	r := setup(t)

	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "partial", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\n_partial_: true\nmode: min\nfactor: 0.1\npatience: 10"},
		{name: "per group min_lr", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\nmin_lr: [0.0, 0.001]"},
		{name: "bad mode", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\nmode: sideways", wantErr: `mode "sideways" is unknown`},
		{name: "factor too big", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\nfactor: 1.5", wantErr: "factor should be < 1.0"},
		{name: "bad threshold mode", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\nthreshold_mode: pct", wantErr: "threshold mode"},
		{name: "bad min_lr", src: "_target_: torch.optim.lr_scheduler.ReduceLROnPlateau\nmin_lr: low", wantErr: "min_lr must be a number"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(context.Background(), decode(t, tc.src), true)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
