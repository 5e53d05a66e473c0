package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapJSON = `{
  "frames": [
    {
      "id": "0x200",
      "name": "ACTUATOR_CMD",
      "dlc": 8,
      "direction": "tx",
      "cycle_ms": 20,
      "signals": [
        {"name": "enable", "start_bit": 0, "bit_length": 1, "signed": false,
         "factor": 1, "offset": 0, "min": 0, "max": 1, "default": 0},
        {"name": "control_output", "start_bit": 8, "bit_length": 16, "signed": true,
         "factor": 0.01, "offset": 0, "min": -100, "max": 100, "default": 0, "unit": "%"}
      ]
    },
    {
      "id": "0x300",
      "name": "PROCESS_STATE",
      "dlc": 4,
      "direction": "rx",
      "cycle_ms": 20,
      "signals": [
        {"name": "process_value", "start_bit": 0, "bit_length": 16, "signed": true,
         "factor": 0.01, "offset": 0, "min": -300, "max": 300, "default": 0}
      ]
    }
  ]
}`

func writeTestMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal_map.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadTestMap(t *testing.T) *SignalMap {
	t.Helper()
	m, err := LoadSignalMap(writeTestMap(t, testMapJSON))
	require.NoError(t, err)
	return m
}

func TestLoadSignalMap(t *testing.T) {
	m := loadTestMap(t)

	assert.Equal(t, []string{"ACTUATOR_CMD", "PROCESS_STATE"}, m.FrameNames())

	fd, err := m.FrameByName("ACTUATOR_CMD")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x200), fd.ID)
	assert.Equal(t, 8, fd.DLC)
	assert.Equal(t, 20, fd.CycleMS)
	assert.Len(t, fd.Signals, 2)

	byID, err := m.FrameByID(0x300)
	require.NoError(t, err)
	assert.Equal(t, "PROCESS_STATE", byID.Name)

	sig, err := byID.SignalByName("process_value")
	require.NoError(t, err)
	assert.Equal(t, 0.01, sig.Factor)
	assert.True(t, sig.Signed)

	_, err = m.FrameByName("NOPE")
	assert.Error(t, err)
	_, err = m.FrameByID(0x999)
	assert.Error(t, err)
	_, err = byID.SignalByName("nope")
	assert.Error(t, err)
}

func TestLoadSignalMapRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no frames":    `{"frames": []}`,
		"bad id":       `{"frames":[{"id":"zzz","name":"F","dlc":8,"signals":[]}]}`,
		"bad dlc":      `{"frames":[{"id":"0x1","name":"F","dlc":9,"signals":[]}]}`,
		"missing name": `{"frames":[{"id":"0x1","dlc":8,"signals":[]}]}`,
		"zero factor": `{"frames":[{"id":"0x1","name":"F","dlc":8,"signals":[
			{"name":"s","start_bit":0,"bit_length":8,"factor":0}]}]}`,
		"bit overflow": `{"frames":[{"id":"0x1","name":"F","dlc":1,"signals":[
			{"name":"s","start_bit":4,"bit_length":8,"factor":1}]}]}`,
		"duplicate id": `{"frames":[
			{"id":"0x1","name":"A","dlc":8,"signals":[]},
			{"id":"0x1","name":"B","dlc":8,"signals":[]}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSignalMap(writeTestMap(t, content))
			assert.Error(t, err)
		})
	}
}
