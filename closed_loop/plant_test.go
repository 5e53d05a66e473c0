package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pid-loop-core/control"
	"pid-loop-core/utils"
)

const testBusMapJSON = `{
  "frames": [
    {
      "id": "0x200", "name": "ACTUATOR_CMD", "dlc": 8, "direction": "tx", "cycle_ms": 20,
      "signals": [
        {"name": "control_output", "start_bit": 0, "bit_length": 16, "signed": true,
         "factor": 0.01, "offset": 0, "min": -300, "max": 300, "default": 0}
      ]
    },
    {
      "id": "0x300", "name": "PROCESS_STATE", "dlc": 4, "direction": "rx", "cycle_ms": 20,
      "signals": [
        {"name": "process_value", "start_bit": 0, "bit_length": 16, "signed": true,
         "factor": 0.01, "offset": 0, "min": -300, "max": 300, "default": 0}
      ]
    }
  ]
}`

func loadBusMap(t *testing.T) *utils.SignalMap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal_map.json")
	require.NoError(t, os.WriteFile(path, []byte(testBusMapJSON), 0o644))
	m, err := utils.LoadSignalMap(path)
	require.NoError(t, err)
	return m
}

func TestPlantStep(t *testing.T) {
	plant := newPlantState(SimConfig{Gain: 2.0, TimeConstantS: 1.0, Ambient: 20, Initial: 20})

	assert.Equal(t, 20.0, plant.step(0), "zero dt leaves the process untouched")

	plant.u = 10 // steady-state target 2*10+20 = 40
	pv := plant.step(1.0)
	want := 20 + 20*(1-math.Exp(-1))
	assert.InDelta(t, want, pv, 1e-9)

	// After many time constants the process sits at the target.
	pv = plant.step(100.0)
	assert.InDelta(t, 40.0, pv, 1e-6)

	// Cutting the input decays back toward ambient.
	plant.u = 0
	pv = plant.step(100.0)
	assert.InDelta(t, 20.0, pv, 1e-6)
}

func TestPlantBusRoundTrip(t *testing.T) {
	smap := loadBusMap(t)
	cmd := SignalRef{Frame: "ACTUATOR_CMD", Signal: "control_output"}
	fb := SignalRef{Frame: "PROCESS_STATE", Signal: "process_value"}

	bus := NewPlantBus(smap, SimConfig{Gain: 2.0, TimeConstantS: 0.05, Ambient: 20, Initial: 20}, cmd, fb, time.Millisecond)
	defer bus.Close()
	ctx := context.Background()

	frame, err := smap.EncodeFrame(cmd.Frame, map[string]float64{cmd.Signal: 30})
	require.NoError(t, err)
	require.NoError(t, bus.WriteFrame(ctx, frame))

	// Let the plant run a few time constants toward 2*30+20 = 80.
	time.Sleep(300 * time.Millisecond)

	out, err := bus.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x300), out.ID)

	pv, err := smap.DecodeSignal(out, fb.Frame, fb.Signal)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, pv, 1.0)

	// Frames other than the command frame are ignored.
	require.NoError(t, bus.WriteFrame(ctx, out))
	assert.InDelta(t, 80.0, bus.ProcessValue(), 1.0)
}

func TestPlantBusReadHonorsContext(t *testing.T) {
	smap := loadBusMap(t)
	bus := NewPlantBus(smap, SimConfig{Gain: 1, TimeConstantS: 1},
		SignalRef{Frame: "ACTUATOR_CMD", Signal: "control_output"},
		SignalRef{Frame: "PROCESS_STATE", Signal: "process_value"},
		time.Hour)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := bus.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The controller regulating the simulated plant must settle on the setpoint
// without residual offset and without windup overshoot.
func TestClosedLoopConvergence(t *testing.T) {
	plant := newPlantState(SimConfig{Gain: 2.0, TimeConstantS: 0.5, Ambient: 20, Initial: 20})

	pid := control.NewPIDController(1.0, 0.4, 0)
	require.NoError(t, pid.ApplyLimits(control.LimitConfig{
		LimitOutput:       true,
		LimitIntegral:     true,
		ConditionIntegral: true,
		OutputMin:         0,
		OutputMax:         100,
	}))

	now := time.Unix(1_700_000_000, 0)
	pid.SetClock(func() time.Time { return now })

	const (
		target = 60.0
		dt     = 50 * time.Millisecond
	)
	pv := plant.pv
	for i := 0; i < 800; i++ {
		plant.u = pid.Evaluate(target - pv)
		pv = plant.step(dt.Seconds())
		now = now.Add(dt)

		if i > 600 {
			assert.InDelta(t, target, pv, 0.5, "cycle %d", i)
		}
	}
	// Steady state needs u = (60-20)/2 = 20, carried entirely by the integral.
	assert.InDelta(t, 20.0, pid.GetIntegral(), 1.0)
}
