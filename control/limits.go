package control

import "fmt"

// LimitConfig describes the saturation and anti-windup policy of a controller
// as one value validated atomically. It is the explicit-error counterpart of
// the Enable* setters, which silently coerce invalid requests: a profile or
// other configuration source should go through ApplyLimits so that a rejected
// combination surfaces as an error instead of a quietly disabled flag.
type LimitConfig struct {
	LimitOutput       bool    `json:"limit_output"`
	LimitIntegral     bool    `json:"limit_integral"`
	ConditionIntegral bool    `json:"condition_integral"`
	OutputMin         float64 `json:"output_min"`
	OutputMax         float64 `json:"output_max"`
}

// Validate checks the dependency rules between the flags and bounds.
func (c LimitConfig) Validate() error {
	if c.LimitOutput && c.OutputMin >= c.OutputMax {
		return fmt.Errorf("output limit requires min < max, got [%g, %g]", c.OutputMin, c.OutputMax)
	}
	if c.LimitIntegral && c.OutputMin >= c.OutputMax {
		return fmt.Errorf("integral limit requires min < max, got [%g, %g]", c.OutputMin, c.OutputMax)
	}
	if c.ConditionIntegral && !c.LimitOutput {
		return fmt.Errorf("integral conditioning requires output limiting")
	}
	return nil
}

// ApplyLimits validates cfg and installs it on the controller. On error the
// controller is left unchanged.
func (pid *PIDController) ApplyLimits(cfg LimitConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pid.outputMin = cfg.OutputMin
	pid.outputMax = cfg.OutputMax
	pid.limitOutput = cfg.LimitOutput
	pid.limitIntegral = cfg.LimitIntegral
	pid.conditionIntegral = cfg.ConditionIntegral
	return nil
}

// Limits returns the currently effective limit configuration.
func (pid *PIDController) Limits() LimitConfig {
	return LimitConfig{
		LimitOutput:       pid.limitOutput,
		LimitIntegral:     pid.limitIntegral,
		ConditionIntegral: pid.conditionIntegral,
		OutputMin:         pid.outputMin,
		OutputMax:         pid.outputMax,
	}
}
