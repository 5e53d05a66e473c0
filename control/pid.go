package control

import (
	"math"
	"time"
)

// PIDController implements a proportional-integral-derivative controller for
// cycles of irregular, caller-determined duration. Gains follow the classic
// time-constant form: kp is the proportional gain (may be negative for a
// process with inverted response), ti the integration time in seconds and td
// the derivative time in seconds. A zero ti disables the integral term, a
// zero td disables the derivative term.
//
// The controller performs no locking and no I/O. Callers invoking Evaluate
// from more than one goroutine on the same instance must serialize access
// themselves.
type PIDController struct {
	kp float64
	ti float64
	td float64

	// State carried between cycles. A zero lastSample marks the first
	// evaluation after construction, Configure or Shutdown; that cycle
	// contributes neither integral nor derivative.
	lastSample time.Time
	lastError  float64

	// Most recently computed contributions and output.
	proportional float64
	integral     float64
	derivative   float64
	output       float64

	limitOutput       bool
	limitIntegral     bool
	conditionIntegral bool
	outputMin         float64
	outputMax         float64

	// now supplies the monotonic clock. Overridable in tests.
	now func() time.Time
}

// NewPIDController creates a controller with the given gains. Output
// limiting, integral limiting and integral conditioning all start disabled;
// enable them explicitly after setting bounds.
func NewPIDController(kp, ti, td float64) *PIDController {
	pid := &PIDController{now: time.Now}
	pid.Configure(kp, ti, td)
	return pid
}

// SetClock replaces the monotonic clock the controller samples on each
// Evaluate. Passing nil restores time.Now. The clock must be strictly
// increasing between cycles.
func (pid *PIDController) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	pid.now = now
}

// Configure replaces the three gains and resets the integration state
// (previous sample time, previous error, integral accumulator). Limit flags
// and bounds are left untouched, so a controller can be retuned without
// losing its anti-windup configuration.
func (pid *PIDController) Configure(kp, ti, td float64) {
	pid.kp = kp
	pid.ti = ti
	pid.td = td
	pid.lastSample = time.Time{}
	pid.lastError = 0
	pid.integral = 0
}

// SetOutputLimits stores the clamp bounds and sets output limiting to enable.
// Degenerate bounds (min == max) or inverted bounds (min > max) are never
// honored: limiting is forced off. Bounds may be stored without enabling by
// passing enable=false. Returns the effective enabled state.
func (pid *PIDController) SetOutputLimits(enable bool, min, max float64) bool {
	pid.outputMin = min
	pid.outputMax = max
	pid.limitOutput = enable && min < max
	return pid.limitOutput
}

// EnableOutputLimit toggles output limiting using previously stored bounds.
// It cannot activate limiting while the stored bounds are degenerate or
// inverted (both default to 0 if never set). Returns the effective state.
func (pid *PIDController) EnableOutputLimit(enable bool) bool {
	pid.limitOutput = enable && pid.outputMin < pid.outputMax
	return pid.limitOutput
}

// OutputLimitEnabled reports whether output clamping is active.
func (pid *PIDController) OutputLimitEnabled() bool {
	return pid.limitOutput
}

// EnableIntegralLimit toggles clamping of the integral accumulator to the
// output bounds. There is no separate bounds pair for the integral; it always
// shares [outputMin, outputMax]. Forced off while those bounds are degenerate
// or inverted. Returns the effective state.
func (pid *PIDController) EnableIntegralLimit(enable bool) bool {
	pid.limitIntegral = enable && pid.outputMin < pid.outputMax
	return pid.limitIntegral
}

// IntegralLimitEnabled reports whether the integral clamp is active.
func (pid *PIDController) IntegralLimitEnabled() bool {
	return pid.limitIntegral
}

// EnableIntegralConditioning toggles the anti-windup pause: while enabled,
// the integral does not accumulate during cycles whose output is saturated.
// Conditioning is meaningless without a saturation concept, so it is forced
// off while output limiting is off. Returns the effective state.
func (pid *PIDController) EnableIntegralConditioning(enable bool) bool {
	pid.conditionIntegral = enable && pid.limitOutput
	return pid.conditionIntegral
}

// IntegralConditioningEnabled reports whether conditional integration is
// active.
func (pid *PIDController) IntegralConditioningEnabled() bool {
	return pid.conditionIntegral
}

// Evaluate computes the control output for the current cycle from the given
// error value (setpoint minus measurement, sign convention is the caller's).
//
// Saturation is judged against the provisional output built from the PREVIOUS
// cycle's integral before this cycle's integration runs. With conditioning
// enabled the integral therefore stops growing while saturated but still
// unwinds once the provisional output re-enters range. The returned value and
// the internal term snapshots are mutually consistent.
//
// Callers must guarantee strictly increasing clock readings between cycles;
// two evaluations at the same instant divide by a zero interval.
func (pid *PIDController) Evaluate(err float64) float64 {
	now := pid.now()
	first := pid.lastSample.IsZero()

	var dt float64
	if !first {
		dt = now.Sub(pid.lastSample).Seconds()
	}

	pid.proportional = pid.kp * err

	if !first && pid.td != 0 {
		pid.derivative = pid.kp * pid.td * (err - pid.lastError) / dt
	} else {
		pid.derivative = 0
	}

	pid.output = pid.proportional + pid.integral + pid.derivative
	saturated := pid.limitOutput && (pid.output > pid.outputMax || pid.output < pid.outputMin)

	if !first && pid.ti != 0 {
		if !pid.conditionIntegral || !saturated {
			// Trapezoidal rule over the elapsed interval.
			pid.integral += pid.kp * (err + pid.lastError) * dt / (2 * pid.ti)
		}
		if pid.limitIntegral {
			pid.integral = math.Min(pid.integral, pid.outputMax)
			pid.integral = math.Max(pid.integral, pid.outputMin)
		}
	}

	pid.output = pid.proportional + pid.integral + pid.derivative
	if pid.limitOutput {
		pid.output = math.Min(pid.output, pid.outputMax)
		pid.output = math.Max(pid.output, pid.outputMin)
	}

	pid.lastSample = now
	pid.lastError = err
	return pid.output
}

// Shutdown halts control without losing tuning: it clears the previous sample
// time, previous error, integral accumulator and the proportional/derivative
// snapshots. Gains, bounds and limit flags survive, as does the last output
// value. The next Evaluate behaves like a first call.
func (pid *PIDController) Shutdown() {
	pid.lastSample = time.Time{}
	pid.lastError = 0
	pid.integral = 0
	pid.proportional = 0
	pid.derivative = 0
}

// GetIntegral returns the current integral accumulator value.
func (pid *PIDController) GetIntegral() float64 {
	return pid.integral
}

// GetProportional returns the proportional contribution of the last cycle.
func (pid *PIDController) GetProportional() float64 {
	return pid.proportional
}

// GetDerivative returns the derivative contribution of the last cycle.
func (pid *PIDController) GetDerivative() float64 {
	return pid.derivative
}

// GetOutput returns the control signal computed by the last Evaluate.
func (pid *PIDController) GetOutput() float64 {
	return pid.output
}

// PIDDiagnostics contains controller internals for monitoring
type PIDDiagnostics struct {
	Error        float64
	Proportional float64
	Integral     float64
	Derivative   float64
	Output       float64
}

// GetDiagnostics returns a snapshot of the controller state for
// logging/debugging.
func (pid *PIDController) GetDiagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:        pid.lastError,
		Proportional: pid.proportional,
		Integral:     pid.integral,
		Derivative:   pid.derivative,
		Output:       pid.output,
	}
}
