package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SignalDef describes one little-endian signal inside a CAN frame payload.
type SignalDef struct {
	Name      string  `json:"name"`
	StartBit  int     `json:"start_bit"`
	BitLength int     `json:"bit_length"`
	Signed    bool    `json:"signed"`
	Factor    float64 `json:"factor"`
	Offset    float64 `json:"offset"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Default   float64 `json:"default"`
	Unit      string  `json:"unit,omitempty"`
	Comment   string  `json:"comment,omitempty"`
}

// FrameDef describes one CAN frame and its signal layout.
type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// SignalMap indexes the frame definitions of one bus by ID and by name.
type SignalMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

type frameJSON struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DLC       int         `json:"dlc"`
	Direction string      `json:"direction"`
	CycleMS   int         `json:"cycle_ms"`
	Signals   []SignalDef `json:"signals"`
}

type signalMapJSON struct {
	Frames []frameJSON `json:"frames"`
}

// LoadSignalMap reads a JSON signal map file. Frame IDs are written as
// decimal or 0x-prefixed hex strings.
func LoadSignalMap(path string) (*SignalMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw signalMapJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal signal map: %w", err)
	}
	if len(raw.Frames) == 0 {
		return nil, fmt.Errorf("signal map %s defines no frames", path)
	}

	m := &SignalMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for _, fr := range raw.Frames {
		id, err := parseHexOrDecUint32(fr.ID)
		if err != nil {
			return nil, fmt.Errorf("frame %s: invalid id %q: %w", fr.Name, fr.ID, err)
		}
		if fr.Name == "" {
			return nil, fmt.Errorf("frame 0x%X: missing name", id)
		}
		if fr.DLC <= 0 || fr.DLC > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", fr.Name, id, fr.DLC)
		}
		if _, dup := m.ByID[id]; dup {
			return nil, fmt.Errorf("duplicate frame id 0x%X", id)
		}
		if _, dup := m.ByName[fr.Name]; dup {
			return nil, fmt.Errorf("duplicate frame name %q", fr.Name)
		}

		fd := &FrameDef{
			ID:        id,
			Name:      fr.Name,
			DLC:       fr.DLC,
			Direction: fr.Direction,
			CycleMS:   fr.CycleMS,
			Signals:   fr.Signals,
		}
		for _, s := range fd.Signals {
			if s.BitLength <= 0 || s.BitLength > 32 {
				return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", fd.Name, s.Name, s.BitLength)
			}
			if s.StartBit < 0 || s.StartBit+s.BitLength > fd.DLC*8 {
				return nil, fmt.Errorf("frame %s signal %s: bits [%d,%d) exceed dlc %d",
					fd.Name, s.Name, s.StartBit, s.StartBit+s.BitLength, fd.DLC)
			}
			if s.Factor == 0 {
				return nil, fmt.Errorf("frame %s signal %s: factor must be nonzero", fd.Name, s.Name)
			}
		}
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })

		m.ByID[id] = fd
		m.ByName[fr.Name] = fd
	}

	return m, nil
}

// FrameByName looks a frame definition up by its name.
func (m *SignalMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

// FrameByID looks a frame definition up by its CAN ID.
func (m *SignalMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// FrameNames returns the defined frame names in sorted order.
func (m *SignalMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SignalByName finds a signal definition within a frame.
func (fd *FrameDef) SignalByName(name string) (SignalDef, error) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, nil
		}
	}
	return SignalDef{}, fmt.Errorf("frame %s has no signal %q", fd.Name, name)
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
