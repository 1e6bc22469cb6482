package handwriting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/trainlaunch/internal/config"
	"github.com/vk/trainlaunch/internal/registry"
	"github.com/vk/trainlaunch/internal/testutil"
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
	n, err := config.DecodeYAML([]byte(testutil.Unindent(src)), "test.yaml")
	require.NoError(t, err)
	return n
}

func TestDataModule(t *testing.T) {
	r := setup(t)

	t.Run("defaults", func(t *testing.T) {
		obj, err := r.Instantiate(context.Background(), decode(t, "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule"))
		require.NoError(t, err)
		p := obj.(*DataModuleParams)
		assert.Equal(t, "data/", p.DataDir)
		assert.Equal(t, []int{55_000, 5_000, 10_000}, p.TrainValTestSplit)
		assert.Equal(t, 64, p.BatchSize)
		assert.Equal(t, -1, p.Limit)
		assert.Equal(t, "iam_xy", p.Transform)
	})

	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name: "xournal transform",
			src: `
				_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule
				data_dir: /data/xournal
				train_val_test_split: [70, 20, 10]
				limit: 100
				batch_size: 8
				transform: XournalPagewise_carbune_xyn
			`,
		},
		{
			name:    "unknown transform",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\ntransform: iam_xyz",
			wantErr: `transform "iam_xyz" is unknown`,
		},
		{
			name:    "negative split",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\ntrain_val_test_split: [10, -1, 2]",
			wantErr: "must not be negative",
		},
		{
			name:    "zero limit",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\nlimit: 0\ntrain_val_test_split: [0, 0, 0]",
			wantErr: "limit must be -1 or positive",
		},
		{
			name:    "two splits",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\ntrain_val_test_split: [1, 2]",
			wantErr: "must have 3 entries",
		},
		{
			name:    "zero batch size",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\nbatch_size: 0",
			wantErr: "batch_size must be positive",
		},
		{
			name:    "string batch size",
			src:     "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule\nbatch_size: many",
			wantErr: "argument 'batch_size'",
		},
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

const litModule = `
	_target_: src.models.carbune_module.LitModule1
	nodes_per_layer: 64
	number_of_layers: 3
	dropout: 0.25
	number_of_channels: 2
	alphabet: [" ", a, b, c]
	decoder:
	  _target_: src.utils.decoders.GreedyCTCDecoder
	optimizer:
	  _target_: torch.optim.Adam
	  _partial_: true
	  lr: 0.001
	scheduler: null
`

func TestLitModule1(t *testing.T) {
	r := setup(t)

	t.Run("valid", func(t *testing.T) {
		n := decode(t, litModule)
		obj, err := r.Instantiate(context.Background(), n)
		require.NoError(t, err)
		p := obj.(*LitModule1Params)
		assert.Equal(t, []string{" ", "a", "b", "c"}, p.Alphabet)
		assert.True(t, p.Scheduler.IsNull())
		assert.Equal(t, "torch.optim.Adam", p.Optimizer.GetAttr("_target_").AsString())
	})

	mutations := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{name: "dropout", key: "dropout", value: 1.0, wantErr: "dropout must be in [0, 1)"},
		{name: "channels", key: "number_of_channels", value: int64(5), wantErr: "number_of_channels must be 2, 3 or 4"},
		{name: "layers", key: "number_of_layers", value: int64(0), wantErr: "number_of_layers must be positive"},
		{name: "duplicate letter", key: "alphabet", value: []any{"a", "a"}, wantErr: `alphabet contains "a" twice`},
		{name: "no optimizer", key: "optimizer", value: nil, wantErr: "optimizer must be set"},
	}
	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			n := decode(t, litModule)
			n.Set(tc.key, tc.value)
			_, err := r.Instantiate(context.Background(), n)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("missing required", func(t *testing.T) {
		n := decode(t, litModule)
		n.Delete("alphabet")
		_, err := r.Instantiate(context.Background(), n)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required argument 'alphabet'")
	})
}

func TestChannels(t *testing.T) {
	testCases := map[string]int{
		"iam_xy":                  2,
		"carbune2020_xytn":        4,
		"carbune2020_xyn":         3,
		"iam_SimpleNormalise_xyn": 3,
	}
	for transform, want := range testCases {
		got, ok := Channels(transform)
		require.True(t, ok, transform)
		assert.Equal(t, want, got, transform)
	}
	_, ok := Channels("nope")
	assert.False(t, ok)
	assert.Len(t, Transforms(), 6)
}

func TestValidate_ChannelsMatchTransform(t *testing.T) {
	r := setup(t)

	testCases := []struct {
		name      string
		transform string
		channels  int64
		wantErr   string
	}{
		{name: "xy into two channels", transform: "iam_xy", channels: 2},
		{name: "xytn into four channels", transform: "carbune2020_xytn", channels: 4},
		{name: "xyn into two channels", transform: "carbune2020_xyn", channels: 2, wantErr: `number_of_channels is 2 but transform "carbune2020_xyn" produces 3 channels`},
		{name: "xy into four channels", transform: "iam_xy", channels: 4, wantErr: `transform "iam_xy" produces 2 channels`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := decode(t, "_target_: src.data.online_handwriting_datamodule.IAMOnDBDataModule")
			data.Set("transform", tc.transform)
			model := decode(t, litModule)
			model.Set("number_of_channels", tc.channels)
			tree := config.NewNode()
			tree.Set("data", data)
			tree.Set("model", model)

			err := r.Validate(context.Background(), tree, false)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, registry.ErrInvalidTargetArgs)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("model alone", func(t *testing.T) {
		tree := config.NewNode()
		tree.Set("model", decode(t, litModule))
		assert.NoError(t, r.Validate(context.Background(), tree, false))
	})
}
