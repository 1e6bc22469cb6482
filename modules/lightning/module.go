// Package lightning registers parameter schemas for the Lightning trainer,
// its callbacks and its loggers.
package lightning

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/trainlaunch/internal/checkpoint"
	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the trainer, callback and logger schemas.
func (m *Module) Register(r *registry.Registry) {
	r.Register("lightning.pytorch.trainer.Trainer", &registry.Target{
		Description: "Lightning trainer settings.",
		Aliases:     []string{"lightning.pytorch.Trainer", "pytorch_lightning.Trainer"},
		NewParams:   newTrainerParams,
		Validate:    validateTrainer,
	})
	r.Register("lightning.pytorch.callbacks.ModelCheckpoint", &registry.Target{
		Description: "Save the model periodically by monitoring a quantity.",
		Aliases:     []string{"pytorch_lightning.callbacks.ModelCheckpoint"},
		NewParams:   newModelCheckpointParams,
		Validate:    validateModelCheckpoint,
	})
	r.Register("lightning.pytorch.callbacks.EarlyStopping", &registry.Target{
		Description: "Stop training when a monitored metric stops improving.",
		Aliases:     []string{"pytorch_lightning.callbacks.EarlyStopping"},
		NewParams:   newEarlyStoppingParams,
		Required:    []string{"monitor"},
		Validate:    validateEarlyStopping,
	})
	r.Register("lightning.pytorch.callbacks.RichModelSummary", &registry.Target{
		Aliases:   []string{"pytorch_lightning.callbacks.RichModelSummary"},
		NewParams: func() any { return &RichModelSummaryParams{MaxDepth: 1} },
		Validate: func(p any) error {
			if p.(*RichModelSummaryParams).MaxDepth < -1 {
				return errors.New("max_depth must be >= -1")
			}
			return nil
		},
	})
	r.Register("lightning.pytorch.callbacks.RichProgressBar", &registry.Target{
		Aliases:   []string{"pytorch_lightning.callbacks.RichProgressBar"},
		NewParams: func() any { return &RichProgressBarParams{RefreshRate: 1} },
	})
	r.Register("lightning.pytorch.loggers.tensorboard.TensorBoardLogger", &registry.Target{
		Description: "Log to a local TensorBoard directory.",
		Aliases:     []string{"lightning.pytorch.loggers.TensorBoardLogger", "pytorch_lightning.loggers.tensorboard.TensorBoardLogger"},
		NewParams:   newTensorBoardParams,
		Required:    []string{"save_dir"},
		Positional:  []string{"save_dir", "name", "version"},
	})
	r.Register("lightning.pytorch.loggers.csv_logs.CSVLogger", &registry.Target{
		Description: "Log to a local CSV file.",
		Aliases:     []string{"lightning.pytorch.loggers.CSVLogger", "pytorch_lightning.loggers.csv_logs.CSVLogger"},
		NewParams:   newCSVLoggerParams,
		Required:    []string{"save_dir"},
		Positional:  []string{"save_dir", "name", "version"},
	})
}

// TrainerParams mirrors the Trainer arguments the configs set.
type TrainerParams struct {
	DefaultRootDir        *string   `cty:"default_root_dir"`
	MinEpochs             *int      `cty:"min_epochs"`
	MaxEpochs             *int      `cty:"max_epochs"`
	MaxSteps              int       `cty:"max_steps"`
	Accelerator           string    `cty:"accelerator"`
	Strategy              string    `cty:"strategy"`
	Devices               cty.Value `cty:"devices"`
	NumNodes              int       `cty:"num_nodes"`
	Precision             cty.Value `cty:"precision"`
	CheckValEveryNEpoch   *int      `cty:"check_val_every_n_epoch"`
	LogEveryNSteps        *int      `cty:"log_every_n_steps"`
	Deterministic         cty.Value `cty:"deterministic"`
	GradientClipVal       *float64  `cty:"gradient_clip_val"`
	AccumulateGradBatches int       `cty:"accumulate_grad_batches"`
	FastDevRun            cty.Value `cty:"fast_dev_run"`
	LimitTrainBatches     cty.Value `cty:"limit_train_batches"`
	LimitValBatches       cty.Value `cty:"limit_val_batches"`
	LimitTestBatches      cty.Value `cty:"limit_test_batches"`
	NumSanityValSteps     *int      `cty:"num_sanity_val_steps"`
	EnableProgressBar     *bool     `cty:"enable_progress_bar"`
	EnableModelSummary    *bool     `cty:"enable_model_summary"`
}

func newTrainerParams() any {
	null := cty.NullVal(cty.DynamicPseudoType)
	return &TrainerParams{
		MaxSteps:              -1,
		Accelerator:           "auto",
		Strategy:              "auto",
		Devices:               cty.StringVal("auto"),
		NumNodes:              1,
		Precision:             null,
		Deterministic:         null,
		AccumulateGradBatches: 1,
		FastDevRun:            cty.False,
		LimitTrainBatches:     null,
		LimitValBatches:       null,
		LimitTestBatches:      null,
	}
}

var accelerators = []string{"auto", "cpu", "gpu", "cuda", "mps", "tpu", "hpu"}

func validateTrainer(p any) error {
	tp := p.(*TrainerParams)
	var errs []error
	if !slices.Contains(accelerators, tp.Accelerator) {
		errs = append(errs, fmt.Errorf("accelerator %q is not one of %v", tp.Accelerator, accelerators))
	}
	if tp.MinEpochs != nil && tp.MaxEpochs != nil && *tp.MaxEpochs >= 0 && *tp.MinEpochs > *tp.MaxEpochs {
		errs = append(errs, fmt.Errorf("min_epochs (%d) exceeds max_epochs (%d)", *tp.MinEpochs, *tp.MaxEpochs))
	}
	if tp.AccumulateGradBatches < 1 {
		errs = append(errs, errors.New("accumulate_grad_batches must be at least 1"))
	}
	if tp.NumNodes < 1 {
		errs = append(errs, errors.New("num_nodes must be at least 1"))
	}
	if err := checkDevices(tp.Devices); err != nil {
		errs = append(errs, err)
	}
	for name, v := range map[string]cty.Value{
		"limit_train_batches": tp.LimitTrainBatches,
		"limit_val_batches":   tp.LimitValBatches,
		"limit_test_batches":  tp.LimitTestBatches,
	} {
		if err := checkLimit(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkDevices accepts a count, "auto", a comma separated id string or a
// list of device ids.
func checkDevices(v cty.Value) error {
	if v.IsNull() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String, ty == cty.Number:
		return nil
	case ty.IsTupleType() || ty.IsListType():
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if ev.IsNull() || ev.Type() != cty.Number {
				return errors.New("devices list must contain device ids")
			}
		}
		return nil
	}
	return fmt.Errorf("devices must be a number, string or list, got %s", ty.FriendlyName())
}

// checkLimit accepts a fraction of batches in [0, 1] or a batch count.
func checkLimit(name string, v cty.Value) error {
	if v.IsNull() {
		return nil
	}
	if v.Type() != cty.Number {
		return fmt.Errorf("%s must be a number, got %s", name, v.Type().FriendlyName())
	}
	f, _ := v.AsBigFloat().Float64()
	if f < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

// ModelCheckpointParams mirrors ModelCheckpoint.
type ModelCheckpointParams struct {
	Dirpath              *string `cty:"dirpath"`
	Filename             *string `cty:"filename"`
	Monitor              *string `cty:"monitor"`
	Verbose              bool    `cty:"verbose"`
	SaveLast             *bool   `cty:"save_last"`
	SaveTopK             int     `cty:"save_top_k"`
	Mode                 string  `cty:"mode"`
	AutoInsertMetricName bool    `cty:"auto_insert_metric_name"`
	SaveWeightsOnly      bool    `cty:"save_weights_only"`
	EveryNTrainSteps     *int    `cty:"every_n_train_steps"`
	TrainTimeInterval    *string `cty:"train_time_interval"`
	EveryNEpochs         *int    `cty:"every_n_epochs"`
	SaveOnTrainEpochEnd  *bool   `cty:"save_on_train_epoch_end"`
}

func newModelCheckpointParams() any {
	return &ModelCheckpointParams{SaveTopK: 1, Mode: "min", AutoInsertMetricName: true}
}

func validateModelCheckpoint(p any) error {
	mp := p.(*ModelCheckpointParams)
	var errs []error
	if _, err := checkpoint.ParseMode(mp.Mode); err != nil {
		errs = append(errs, err)
	}
	if mp.SaveTopK < -1 {
		errs = append(errs, fmt.Errorf("invalid value for save_top_k=%d: must be >= -1", mp.SaveTopK))
	}
	if mp.Monitor == nil && mp.SaveTopK > 1 {
		errs = append(errs, fmt.Errorf("save_top_k=%d requires a monitor", mp.SaveTopK))
	}
	if mp.Filename != nil {
		if _, err := checkpoint.ParseTemplate(*mp.Filename, mp.AutoInsertMetricName); err != nil {
			errs = append(errs, fmt.Errorf("filename: %w", err))
		}
	}
	if mp.EveryNTrainSteps != nil && mp.EveryNEpochs != nil && *mp.EveryNTrainSteps > 0 && *mp.EveryNEpochs > 0 {
		errs = append(errs, errors.New("every_n_train_steps and every_n_epochs are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// EarlyStoppingParams mirrors EarlyStopping.
type EarlyStoppingParams struct {
	Monitor              string   `cty:"monitor"`
	MinDelta             float64  `cty:"min_delta"`
	Patience             int      `cty:"patience"`
	Verbose              bool     `cty:"verbose"`
	Mode                 string   `cty:"mode"`
	Strict               bool     `cty:"strict"`
	CheckFinite          bool     `cty:"check_finite"`
	StoppingThreshold    *float64 `cty:"stopping_threshold"`
	DivergenceThreshold  *float64 `cty:"divergence_threshold"`
	CheckOnTrainEpochEnd *bool    `cty:"check_on_train_epoch_end"`
	LogRankZeroOnly      bool     `cty:"log_rank_zero_only"`
}

func newEarlyStoppingParams() any {
	return &EarlyStoppingParams{Patience: 3, Mode: "min", Strict: true, CheckFinite: true}
}

func validateEarlyStopping(p any) error {
	ep := p.(*EarlyStoppingParams)
	var errs []error
	if ep.Monitor == "" {
		errs = append(errs, errors.New("monitor must not be empty"))
	}
	if _, err := checkpoint.ParseMode(ep.Mode); err != nil {
		errs = append(errs, err)
	}
	if ep.Patience < 0 {
		errs = append(errs, errors.New("patience must not be negative"))
	}
	return errors.Join(errs...)
}

// RichModelSummaryParams mirrors RichModelSummary.
type RichModelSummaryParams struct {
	MaxDepth int `cty:"max_depth"`
}

// RichProgressBarParams mirrors RichProgressBar.
type RichProgressBarParams struct {
	RefreshRate int  `cty:"refresh_rate"`
	Leave       bool `cty:"leave"`
}

// TensorBoardParams mirrors TensorBoardLogger.
type TensorBoardParams struct {
	SaveDir         string    `cty:"save_dir"`
	Name            *string   `cty:"name"`
	Version         cty.Value `cty:"version"`
	Prefix          string    `cty:"prefix"`
	LogGraph        bool      `cty:"log_graph"`
	DefaultHPMetric bool      `cty:"default_hp_metric"`
}

func newTensorBoardParams() any {
	name := "lightning_logs"
	return &TensorBoardParams{
		Name:            &name,
		Version:         cty.NullVal(cty.DynamicPseudoType),
		DefaultHPMetric: true,
	}
}

// CSVLoggerParams mirrors CSVLogger.
type CSVLoggerParams struct {
	SaveDir              string    `cty:"save_dir"`
	Name                 *string   `cty:"name"`
	Version              cty.Value `cty:"version"`
	Prefix               string    `cty:"prefix"`
	FlushLogsEveryNSteps int       `cty:"flush_logs_every_n_steps"`
}

func newCSVLoggerParams() any {
	name := "lightning_logs"
	return &CSVLoggerParams{
		Name:                 &name,
		Version:              cty.NullVal(cty.DynamicPseudoType),
		FlushLogsEveryNSteps: 100,
	}
}
