// Package handwriting registers the data module, model and decoder targets
// of the online handwriting recognition project.
package handwriting

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// transformChannels maps every dataset transform to the number of input
// channels the resulting samples carry.
var transformChannels = map[string]int{
	"iam_xy":                              2,
	"carbune2020_xytn":                    4,
	"carbune2020_xyn":                     3,
	"XournalPagewise_carbune_xyn":         3,
	"iam_SimpleNormalise_xyn":             3,
	"XournalPagewise_SimpleNormalise_xyn": 3,
}

// Transforms lists the known dataset transforms, sorted.
func Transforms() []string {
	out := make([]string, 0, len(transformChannels))
	for k := range transformChannels {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Channels returns the number of input channels a transform produces.
func Channels(transform string) (int, bool) {
	n, ok := transformChannels[transform]
	return n, ok
}

// DataModuleParams mirrors IAMOnDBDataModule.
type DataModuleParams struct {
	DataDir           string `cty:"data_dir"`
	TrainValTestSplit []int  `cty:"train_val_test_split"`
	BatchSize         int    `cty:"batch_size"`
	NumWorkers        int    `cty:"num_workers"`
	Limit             int    `cty:"limit"`
	PinMemory         bool   `cty:"pin_memory"`
	Transform         string `cty:"transform"`
}

func newDataModuleParams() any {
	return &DataModuleParams{
		DataDir:           "data/",
		TrainValTestSplit: []int{55_000, 5_000, 10_000},
		BatchSize:         64,
		Limit:             -1,
		Transform:         "iam_xy",
	}
}

func validateDataModule(p any) error {
	dp := p.(*DataModuleParams)
	var errs []error
	if _, ok := Channels(dp.Transform); !ok {
		errs = append(errs, fmt.Errorf("transform %q is unknown (known: %v)", dp.Transform, Transforms()))
	}
	if len(dp.TrainValTestSplit) != 3 {
		errs = append(errs, fmt.Errorf("train_val_test_split must have 3 entries, got %d", len(dp.TrainValTestSplit)))
	}
	// Whether the splits fit is only known once the dataset is loaded.
	for _, n := range dp.TrainValTestSplit {
		if n < 0 {
			errs = append(errs, errors.New("train_val_test_split entries must not be negative"))
			break
		}
	}
	if dp.Limit == 0 || dp.Limit < -1 {
		errs = append(errs, fmt.Errorf("limit must be -1 or positive, got %d", dp.Limit))
	}
	if dp.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", dp.BatchSize))
	}
	if dp.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("num_workers must not be negative, got %d", dp.NumWorkers))
	}
	return errors.Join(errs...)
}

// LitModule1Params mirrors the Carbune2020 LSTM model.
type LitModule1Params struct {
	NodesPerLayer    int       `cty:"nodes_per_layer"`
	NumberOfLayers   int       `cty:"number_of_layers"`
	Dropout          float64   `cty:"dropout"`
	Decoder          cty.Value `cty:"decoder"`
	Optimizer        cty.Value `cty:"optimizer"`
	Scheduler        cty.Value `cty:"scheduler"`
	Alphabet         []string  `cty:"alphabet"`
	NumberOfChannels int       `cty:"number_of_channels"`
}

func newLitModule1Params() any {
	null := cty.NullVal(cty.DynamicPseudoType)
	return &LitModule1Params{Decoder: null, Optimizer: null, Scheduler: null}
}

func validateLitModule1(p any) error {
	mp := p.(*LitModule1Params)
	var errs []error
	if mp.NodesPerLayer < 1 {
		errs = append(errs, fmt.Errorf("nodes_per_layer must be positive, got %d", mp.NodesPerLayer))
	}
	if mp.NumberOfLayers < 1 {
		errs = append(errs, fmt.Errorf("number_of_layers must be positive, got %d", mp.NumberOfLayers))
	}
	if mp.Dropout < 0 || mp.Dropout >= 1 {
		errs = append(errs, fmt.Errorf("dropout must be in [0, 1), got %v", mp.Dropout))
	}
	if mp.NumberOfChannels < 2 || mp.NumberOfChannels > 4 {
		errs = append(errs, fmt.Errorf("number_of_channels must be 2, 3 or 4, got %d", mp.NumberOfChannels))
	}
	if len(mp.Alphabet) == 0 {
		errs = append(errs, errors.New("alphabet must not be empty"))
	}
	seen := make(map[string]bool, len(mp.Alphabet))
	for _, c := range mp.Alphabet {
		if seen[c] {
			errs = append(errs, fmt.Errorf("alphabet contains %q twice", c))
		}
		seen[c] = true
	}
	if mp.Optimizer.IsNull() {
		errs = append(errs, errors.New("optimizer must be set"))
	}
	if mp.Decoder.IsNull() {
		errs = append(errs, errors.New("decoder must be set"))
	}
	return errors.Join(errs...)
}

// CarbuneLitModule2Params mirrors the model variant with a separate network.
type CarbuneLitModule2Params struct {
	Decoder   cty.Value `cty:"decoder"`
	Net       cty.Value `cty:"net"`
	Optimizer cty.Value `cty:"optimizer"`
	Scheduler cty.Value `cty:"scheduler"`
}

func newCarbuneLitModule2Params() any {
	null := cty.NullVal(cty.DynamicPseudoType)
	return &CarbuneLitModule2Params{Decoder: null, Net: null, Optimizer: null, Scheduler: null}
}

// GreedyDecoderParams is empty: the greedy CTC decoder takes no arguments.
type GreedyDecoderParams struct{}

const (
	dataModuleTarget = "src.data.online_handwriting_datamodule.IAMOnDBDataModule"
	litModule1Target = "src.models.carbune_module.LitModule1"
)

// checkChannels makes sure the model reads as many channels as the dataset
// transform produces.
func checkChannels(found map[string][]any) error {
	data := found[dataModuleTarget]
	if len(data) != 1 {
		return nil
	}
	transform := data[0].(*DataModuleParams).Transform
	want, ok := Channels(transform)
	if !ok {
		return nil
	}
	var errs []error
	for _, p := range found[litModule1Target] {
		if got := p.(*LitModule1Params).NumberOfChannels; got != want {
			errs = append(errs, fmt.Errorf("number_of_channels is %d but transform %q produces %d channels", got, transform, want))
		}
	}
	return errors.Join(errs...)
}

// Register registers the project's targets.
func (m *Module) Register(r *registry.Registry) {
	r.Register(dataModuleTarget, &registry.Target{
		Description: "IAM-OnDB and Xournal datasets with the selected transform.",
		NewParams:   newDataModuleParams,
		Validate:    validateDataModule,
	})
	r.Register(litModule1Target, &registry.Target{
		Description: "Carbune2020 bidirectional LSTM with CTC loss.",
		NewParams:   newLitModule1Params,
		Required:    []string{"nodes_per_layer", "number_of_layers", "dropout", "decoder", "optimizer", "alphabet", "number_of_channels"},
		Validate:    validateLitModule1,
	})
	r.Register("src.models.carbune_module.CarbuneLitModule2", &registry.Target{
		Description: "Carbune2020 model wrapping a separately configured network.",
		NewParams:   newCarbuneLitModule2Params,
		Required:    []string{"decoder", "net", "optimizer"},
	})
	r.Register("src.utils.decoders.GreedyCTCDecoder", &registry.Target{
		Description: "Best-path CTC decoding.",
		NewParams:   func() any { return &GreedyDecoderParams{} },
	})
	r.RegisterCrossCheck("handwriting channels", checkChannels)
}
