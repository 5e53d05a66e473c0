package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs the given physical values into a transmit-ready frame.
// Missing signals take their defaults; values are clamped to the signal's
// physical range and the raw range of its bit field.
func (m *SignalMap) EncodeFrame(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		payload = s.encodeInto(payload, v)
	}

	var f can.Frame
	f.ID = fd.ID
	f.Length = uint8(fd.DLC)
	for i := 0; i < fd.DLC; i++ {
		f.Data[i] = byte(payload >> (8 * i))
	}
	return f, nil
}

// DecodeFrame extracts all physical signal values from a received frame,
// matched against the map by CAN ID.
func (m *SignalMap) DecodeFrame(frame can.Frame) (map[string]float64, error) {
	fd, err := m.FrameByID(frame.ID)
	if err != nil {
		return nil, err
	}
	if int(frame.Length) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects dlc %d, got %d", frame.ID, fd.DLC, frame.Length)
	}

	payload := payloadOf(frame, fd.DLC)
	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		out[s.Name] = s.decodeFrom(payload)
	}
	return out, nil
}

// DecodeSignal extracts a single physical signal value from a received frame.
func (m *SignalMap) DecodeSignal(frame can.Frame, frameName, signalName string) (float64, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return 0, err
	}
	if frame.ID != fd.ID {
		return 0, fmt.Errorf("frame id 0x%X does not match %s (0x%X)", frame.ID, frameName, fd.ID)
	}
	s, err := fd.SignalByName(signalName)
	if err != nil {
		return 0, err
	}
	return s.decodeFrom(payloadOf(frame, fd.DLC)), nil
}

func payloadOf(frame can.Frame, dlc int) uint64 {
	var payload uint64
	for i := 0; i < dlc && i < 8; i++ {
		payload |= uint64(frame.Data[i]) << (8 * i)
	}
	return payload
}

// encodeInto converts the physical value to raw and packs it into payload.
func (s SignalDef) encodeInto(payload uint64, v float64) uint64 {
	v = Clamp(v, s.Min, s.Max)
	raw := s.clampRaw(int64(math.Round((v - s.Offset) / s.Factor)))

	mask := uint64(1)<<s.BitLength - 1
	payload &^= mask << s.StartBit
	payload |= (uint64(raw) & mask) << s.StartBit
	return payload
}

// decodeFrom unpacks the raw bits from payload and converts them to a
// physical value.
func (s SignalDef) decodeFrom(payload uint64) float64 {
	mask := uint64(1)<<s.BitLength - 1
	u := (payload >> s.StartBit) & mask

	raw := int64(u)
	if s.Signed && u&(uint64(1)<<(s.BitLength-1)) != 0 {
		raw = int64(u | ^mask) // sign-extend
	}
	return float64(raw)*s.Factor + s.Offset
}

func (s SignalDef) clampRaw(raw int64) int64 {
	var lo, hi int64
	if s.Signed {
		lo = -(int64(1) << (s.BitLength - 1))
		hi = int64(1)<<(s.BitLength-1) - 1
	} else {
		lo = 0
		hi = int64(1)<<s.BitLength - 1
	}
	if raw < lo {
		return lo
	}
	if raw > hi {
		return hi
	}
	return raw
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
