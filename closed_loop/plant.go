package main

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"go.einride.tech/can"

	"pid-loop-core/utils"
)

// plantState is a first-order lag process:
// dPV/dt = (Gain*u + Ambient - PV) / TimeConstantS.
type plantState struct {
	cfg SimConfig
	pv  float64
	u   float64
}

func newPlantState(cfg SimConfig) *plantState {
	return &plantState{cfg: cfg, pv: cfg.Initial}
}

// step advances the process by dt seconds using the exact discretization of
// the first-order response.
func (p *plantState) step(dt float64) float64 {
	if dt <= 0 {
		return p.pv
	}
	target := p.cfg.Gain*p.u + p.cfg.Ambient
	p.pv += (target - p.pv) * (1 - math.Exp(-dt/p.cfg.TimeConstantS))
	return p.pv
}

// PlantBus is an in-process stand-in for a CAN bus. Command frames written to
// it drive the simulated plant; reads return the plant's process value frame
// once per feedback period. It implements both utils.CANWriter and
// utils.CANReader so the runner cannot tell it from real hardware.
type PlantBus struct {
	mu    sync.Mutex
	smap  *utils.SignalMap
	plant *plantState
	cmd   SignalRef
	fb    SignalRef

	period time.Duration
	last   time.Time
	now    func() time.Time
	closed chan struct{}
	once   sync.Once
}

// NewPlantBus builds a loopback bus from the profile's sim parameters. The
// feedback frame is produced every period.
func NewPlantBus(smap *utils.SignalMap, cfg SimConfig, cmd, fb SignalRef, period time.Duration) *PlantBus {
	b := &PlantBus{
		smap:   smap,
		plant:  newPlantState(cfg),
		cmd:    cmd,
		fb:     fb,
		period: period,
		now:    time.Now,
		closed: make(chan struct{}),
	}
	b.last = b.now()
	return b
}

// WriteFrame accepts a command frame and applies its command signal to the
// plant input. Frames other than the command frame are ignored.
func (b *PlantBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u, err := b.smap.DecodeSignal(frame, b.cmd.Frame, b.cmd.Signal)
	if err != nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	b.plant.u = u
	return nil
}

// ReadFrame waits one feedback period, then returns the encoded process
// value frame. A closed bus reports io.EOF.
func (b *PlantBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	t := time.NewTimer(b.period)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.closed:
		return can.Frame{}, io.EOF
	case <-t.C:
	}

	b.mu.Lock()
	pv := b.advanceLocked()
	b.mu.Unlock()

	return b.smap.EncodeFrame(b.fb.Frame, map[string]float64{b.fb.Signal: pv})
}

func (b *PlantBus) advanceLocked() float64 {
	now := b.now()
	pv := b.plant.step(now.Sub(b.last).Seconds())
	b.last = now
	return pv
}

// ProcessValue returns the current simulated process value.
func (b *PlantBus) ProcessValue() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advanceLocked()
}

func (b *PlantBus) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}
