// Package torch registers parameter schemas for the torch optimizers and
// learning-rate schedulers the training configs use. They are validated
// here and constructed by the trainer.
package torch

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/trainlaunch/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// AdamParams mirrors torch.optim.Adam.
type AdamParams struct {
	Params      cty.Value `cty:"params"`
	LR          float64   `cty:"lr"`
	Betas       []float64 `cty:"betas"`
	Eps         float64   `cty:"eps"`
	WeightDecay float64   `cty:"weight_decay"`
	Amsgrad     bool      `cty:"amsgrad"`
}

func newAdamParams() any {
	return &AdamParams{
		Params: cty.NullVal(cty.DynamicPseudoType),
		LR:     0.001,
		Betas:  []float64{0.9, 0.999},
		Eps:    1e-8,
	}
}

func validateAdam(p any) error {
	ap := p.(*AdamParams)
	var errs []error
	if ap.LR < 0 {
		errs = append(errs, fmt.Errorf("invalid learning rate: %v", ap.LR))
	}
	if ap.Eps < 0 {
		errs = append(errs, fmt.Errorf("invalid epsilon value: %v", ap.Eps))
	}
	if len(ap.Betas) != 2 {
		errs = append(errs, fmt.Errorf("betas must have 2 entries, got %d", len(ap.Betas)))
	} else {
		for i, b := range ap.Betas {
			if b < 0 || b >= 1 {
				errs = append(errs, fmt.Errorf("invalid beta parameter at index %d: %v", i, b))
			}
		}
	}
	if ap.WeightDecay < 0 {
		errs = append(errs, fmt.Errorf("invalid weight_decay value: %v", ap.WeightDecay))
	}
	return errors.Join(errs...)
}

// PlateauParams mirrors torch.optim.lr_scheduler.ReduceLROnPlateau.
type PlateauParams struct {
	Optimizer     cty.Value `cty:"optimizer"`
	Mode          string    `cty:"mode"`
	Factor        float64   `cty:"factor"`
	Patience      int       `cty:"patience"`
	Threshold     float64   `cty:"threshold"`
	ThresholdMode string    `cty:"threshold_mode"`
	Cooldown      int       `cty:"cooldown"`
	MinLR         cty.Value `cty:"min_lr"`
	Eps           float64   `cty:"eps"`
}

func newPlateauParams() any {
	return &PlateauParams{
		Optimizer:     cty.NullVal(cty.DynamicPseudoType),
		Mode:          "min",
		Factor:        0.1,
		Patience:      10,
		Threshold:     1e-4,
		ThresholdMode: "rel",
		MinLR:         cty.NumberIntVal(0),
		Eps:           1e-8,
	}
}

func validatePlateau(p any) error {
	pp := p.(*PlateauParams)
	var errs []error
	if pp.Mode != "min" && pp.Mode != "max" {
		errs = append(errs, fmt.Errorf("mode %q is unknown", pp.Mode))
	}
	if pp.ThresholdMode != "rel" && pp.ThresholdMode != "abs" {
		errs = append(errs, fmt.Errorf("threshold mode %q is unknown", pp.ThresholdMode))
	}
	if pp.Factor >= 1 {
		errs = append(errs, errors.New("factor should be < 1.0"))
	}
	if pp.Patience < 0 || pp.Cooldown < 0 {
		errs = append(errs, errors.New("patience and cooldown must be non-negative"))
	}
	if err := checkMinLR(pp.MinLR); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// checkMinLR accepts a number or a list of numbers, one per param group.
func checkMinLR(v cty.Value) error {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Number:
		return nil
	case ty.IsTupleType() || ty.IsListType():
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if ev.IsNull() || ev.Type() != cty.Number {
				return errors.New("min_lr entries must be numbers")
			}
		}
		return nil
	}
	return fmt.Errorf("min_lr must be a number or a list of numbers, got %s", ty.FriendlyName())
}

// Register registers the optimizer and scheduler schemas.
func (m *Module) Register(r *registry.Registry) {
	r.Register("torch.optim.Adam", &registry.Target{
		Description: "Adam optimizer. Usually configured with _partial_: true.",
		NewParams:   newAdamParams,
		Validate:    validateAdam,
	})
	r.Register("torch.optim.lr_scheduler.ReduceLROnPlateau", &registry.Target{
		Description: "Reduce the learning rate when a metric stops improving.",
		NewParams:   newPlateauParams,
		Validate:    validatePlateau,
	})
}
