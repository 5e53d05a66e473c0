package main

import (
	"encoding/json"
	"fmt"
	"os"

	"pid-loop-core/control"
)

// Profile defines a complete control run: gains and limits for the
// controller, a setpoint schedule, and the bus signals carrying feedback and
// command.
type Profile struct {
	Meta      ProfileMeta         `json:"meta"`
	Timing    ProfileTiming       `json:"timing"`
	Gains     GainConfig          `json:"gains"`
	Limits    control.LimitConfig `json:"limits"`
	Setpoints []SetpointSegment   `json:"setpoints"`
	Feedback  SignalRef           `json:"feedback"`
	Command   SignalRef           `json:"command"`

	// InvertError flips the error sign for processes whose value falls when
	// the command rises.
	InvertError bool `json:"invert_error,omitempty"`

	// DefaultSetpoint applies outside every segment.
	DefaultSetpoint float64 `json:"default_setpoint"`

	// Sim parameterizes the loopback plant used when running without a bus.
	Sim *SimConfig `json:"sim,omitempty"`
}

// ProfileMeta contains run metadata
type ProfileMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ProfileTiming defines cycle cadence and run length
type ProfileTiming struct {
	CycleMS   int     `json:"cycle_ms"`
	DurationS float64 `json:"duration_s"`
}

// GainConfig holds the controller tuning. TiS/TdS are time constants in
// seconds; zero disables the corresponding term.
type GainConfig struct {
	Kp  float64 `json:"kp"`
	TiS float64 `json:"ti_s"`
	TdS float64 `json:"td_s"`
}

// SetpointSegment holds the setpoint over [T0, T1). A negative T1 means
// "until the end of the run".
type SetpointSegment struct {
	T0       float64 `json:"t0"`
	T1       float64 `json:"t1"`
	Setpoint float64 `json:"setpoint"`
	Comment  string  `json:"comment,omitempty"`
}

// SignalRef names one signal within one frame of the signal map.
type SignalRef struct {
	Frame  string `json:"frame"`
	Signal string `json:"signal"`
}

// SimConfig parameterizes the first-order loopback plant:
// dPV/dt = (Gain*u + Ambient - PV) / TimeConstantS.
type SimConfig struct {
	Gain          float64 `json:"gain"`
	TimeConstantS float64 `json:"time_constant_s"`
	Ambient       float64 `json:"ambient"`
	Initial       float64 `json:"initial"`
}

// LoadProfile loads and validates a control profile from a JSON file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read file: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("unmarshal: %w", err)
	}

	if p.Timing.DurationS <= 0 {
		return Profile{}, fmt.Errorf("invalid duration_s: %f", p.Timing.DurationS)
	}
	if p.Timing.CycleMS <= 0 {
		return Profile{}, fmt.Errorf("invalid cycle_ms: %d", p.Timing.CycleMS)
	}
	if p.Gains.TiS < 0 || p.Gains.TdS < 0 {
		return Profile{}, fmt.Errorf("time constants must be >= 0 (ti_s=%f td_s=%f)", p.Gains.TiS, p.Gains.TdS)
	}
	if err := p.Limits.Validate(); err != nil {
		return Profile{}, fmt.Errorf("limits: %w", err)
	}
	if p.Feedback.Frame == "" || p.Feedback.Signal == "" {
		return Profile{}, fmt.Errorf("feedback frame and signal are required")
	}
	if p.Command.Frame == "" || p.Command.Signal == "" {
		return Profile{}, fmt.Errorf("command frame and signal are required")
	}
	if p.Sim != nil {
		if p.Sim.TimeConstantS <= 0 {
			return Profile{}, fmt.Errorf("sim time_constant_s must be > 0")
		}
	}

	return p, nil
}

// SetpointAt evaluates the setpoint schedule at time t.
func (p *Profile) SetpointAt(t float64) float64 {
	sp := p.DefaultSetpoint

	for _, seg := range p.Setpoints {
		t1 := seg.T1
		if t1 < 0 {
			t1 = p.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			sp = seg.Setpoint
			break
		}
	}

	return sp
}
