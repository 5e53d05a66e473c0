package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	m := loadTestMap(t)

	frame, err := m.EncodeFrame("ACTUATOR_CMD", map[string]float64{
		"enable":         1,
		"control_output": -12.34,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x200), frame.ID)
	assert.Equal(t, uint8(8), frame.Length)

	values, err := m.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 1.0, values["enable"])
	assert.InDelta(t, -12.34, values["control_output"], 0.01)
}

func TestEncodeFrameDefaultsAndClamping(t *testing.T) {
	m := loadTestMap(t)

	// No values: every signal takes its default.
	frame, err := m.EncodeFrame("ACTUATOR_CMD", nil)
	require.NoError(t, err)
	values, err := m.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, 0.0, values["enable"])
	assert.Equal(t, 0.0, values["control_output"])

	// Out-of-range physical value clamps to the signal max.
	frame, err = m.EncodeFrame("ACTUATOR_CMD", map[string]float64{"control_output": 500})
	require.NoError(t, err)
	out, err := m.DecodeSignal(frame, "ACTUATOR_CMD", "control_output")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out, 0.01)
}

func TestDecodeSignalMismatchedFrame(t *testing.T) {
	m := loadTestMap(t)

	frame, err := m.EncodeFrame("PROCESS_STATE", map[string]float64{"process_value": 42.5})
	require.NoError(t, err)

	pv, err := m.DecodeSignal(frame, "PROCESS_STATE", "process_value")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, pv, 0.01)

	_, err = m.DecodeSignal(frame, "ACTUATOR_CMD", "control_output")
	assert.Error(t, err, "frame id must match the named frame")

	_, err = m.EncodeFrame("NOPE", nil)
	assert.Error(t, err)
}

func TestSignedSignalRoundTrip(t *testing.T) {
	s := SignalDef{Name: "v", StartBit: 8, BitLength: 12, Signed: true, Factor: 0.5, Offset: -10, Min: -1000, Max: 1000}

	for _, v := range []float64{0, -10, 13.5, -500.5, 13.4 /* rounds to 13.5 */} {
		payload := s.encodeInto(0, v)
		got := s.decodeFrom(payload)
		assert.InDelta(t, v, got, 0.25, "value %g", v)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(5, -1, 1))
	assert.Equal(t, -1.0, Clamp(-5, -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
}
