package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pid-loop-core/control"
	"pid-loop-core/utils"
)

type RunnerConfig struct {
	Interface   string
	MapPath     string
	ProfilePath string
	Simulate    bool
	CSVPath     string
}

// Runner drives one closed loop: it decodes process-value feedback from the
// bus, evaluates the controller against the profile's setpoint schedule, and
// transmits the resulting command frame once per cycle.
type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	smap    *utils.SignalMap
	profile Profile
	writer  utils.CANWriter
	reader  utils.CANReader
	pid     *control.PIDController
	rec     *utils.Recorder
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	smap, err := utils.LoadSignalMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load signal map: %w", err)
	}

	profile, err := LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	// Both referenced frames and signals must exist in the map.
	cmdFrame, err := smap.FrameByName(profile.Command.Frame)
	if err != nil {
		return nil, fmt.Errorf("command frame: %w", err)
	}
	if _, err := cmdFrame.SignalByName(profile.Command.Signal); err != nil {
		return nil, fmt.Errorf("command signal: %w", err)
	}
	fbFrame, err := smap.FrameByName(profile.Feedback.Frame)
	if err != nil {
		return nil, fmt.Errorf("feedback frame: %w", err)
	}
	if _, err := fbFrame.SignalByName(profile.Feedback.Signal); err != nil {
		return nil, fmt.Errorf("feedback signal: %w", err)
	}

	pid := control.NewPIDController(profile.Gains.Kp, profile.Gains.TiS, profile.Gains.TdS)
	if err := pid.ApplyLimits(profile.Limits); err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		log:     log,
		smap:    smap,
		profile: profile,
		pid:     pid,
		rec:     utils.NewRecorder(),
	}

	if cfg.Simulate {
		if profile.Sim == nil {
			return nil, fmt.Errorf("simulation requires a sim section in the profile")
		}
		bus := NewPlantBus(smap, *profile.Sim,
			profile.Command, profile.Feedback,
			time.Duration(profile.Timing.CycleMS)*time.Millisecond)
		r.writer = bus
		r.reader = bus
		log.Info("Loopback plant: gain=%.3f tau=%.3fs ambient=%.3f initial=%.3f",
			profile.Sim.Gain, profile.Sim.TimeConstantS, profile.Sim.Ambient, profile.Sim.Initial)
	} else {
		writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
		if err != nil {
			return nil, err
		}
		reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
		if err != nil {
			writer.Close()
			return nil, err
		}
		r.writer = writer
		r.reader = reader
	}

	log.Info("Controller: kp=%.4f ti=%.3fs td=%.3fs limits=%+v invert=%v",
		profile.Gains.Kp, profile.Gains.TiS, profile.Gains.TdS, profile.Limits, profile.InvertError)

	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// feedback carries one decoded process-value reading from the RX goroutine.
type feedback struct {
	Value     float64
	Timestamp time.Time
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting loop: profile=%s duration=%.2fs cycle=%dms cmd=%s/%s fb=%s/%s",
		r.profile.Meta.Name, r.profile.Timing.DurationS, r.profile.Timing.CycleMS,
		r.profile.Command.Frame, r.profile.Command.Signal,
		r.profile.Feedback.Frame, r.profile.Feedback.Signal)

	start := time.Now()
	ticker := time.NewTicker(time.Duration(r.profile.Timing.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	endAfter := time.Duration(r.profile.Timing.DurationS * float64(time.Second))
	var sent uint64

	processValue := 0.0
	haveFeedback := false
	lastRx := time.Now()

	rxChan := make(chan feedback, 100)
	go r.receiveLoop(ctx, rxChan)

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping loop")
			r.finish(sent)
			return ctx.Err()

		case fb := <-rxChan:
			processValue = fb.Value
			haveFeedback = true
			lastRx = fb.Timestamp
			r.log.Trace("RX pv=%.4f", processValue)

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > endAfter {
				r.finish(sent)
				return nil
			}
			t := elapsed.Seconds()

			if rxAge := now.Sub(lastRx); rxAge > 500*time.Millisecond {
				r.log.Warn("No feedback for %.0f ms; holding last process value", rxAge.Seconds()*1000)
			}
			if !haveFeedback {
				// Don't act on a process value we never saw.
				continue
			}

			setpoint := r.profile.SetpointAt(t)
			errValue := setpoint - processValue
			if r.profile.InvertError {
				errValue = -errValue
			}

			out := r.pid.Evaluate(errValue)

			frame, err := r.smap.EncodeFrame(r.profile.Command.Frame, map[string]float64{
				r.profile.Command.Signal: out,
			})
			if err != nil {
				r.log.Error("Encode failed at t=%.3f: %v", t, err)
				return err
			}
			if err := r.writer.WriteFrame(ctx, frame); err != nil {
				r.log.Critical("Transmit failed at t=%.3f: %v", t, err)
				return err
			}
			sent++

			diag := r.pid.GetDiagnostics()
			lim := r.profile.Limits
			saturated := lim.LimitOutput && (out >= lim.OutputMax || out <= lim.OutputMin)
			r.rec.Record(utils.Sample{
				T:            t,
				Setpoint:     setpoint,
				Process:      processValue,
				Error:        errValue,
				Proportional: diag.Proportional,
				Integral:     diag.Integral,
				Derivative:   diag.Derivative,
				Output:       out,
				Saturated:    saturated,
			})

			if sent%100 == 0 {
				r.log.Debug("t=%.2f sp=%.3f pv=%.3f err=%.3f out=%.3f P=%.3f I=%.3f D=%.3f",
					t, setpoint, processValue, errValue, out,
					diag.Proportional, diag.Integral, diag.Derivative)
			}
			r.log.Trace("TX t=%.3f id=0x%X out=%.4f", t, frame.ID, out)
		}
	}
}

func (r *Runner) finish(sent uint64) {
	r.pid.Shutdown()
	r.log.Info("Completed loop. frames_sent=%d %s", sent, r.rec.Summary())

	if r.cfg.CSVPath != "" {
		if err := r.rec.WriteCSV(r.cfg.CSVPath); err != nil {
			r.log.Error("Telemetry CSV write failed: %v", err)
		} else {
			r.log.Info("Telemetry written to %s (%d samples)", r.cfg.CSVPath, r.rec.Len())
		}
	}
}

// receiveLoop reads frames from the bus and forwards decoded process values.
func (r *Runner) receiveLoop(ctx context.Context, out chan<- feedback) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	fbFrame, err := r.smap.FrameByName(r.profile.Feedback.Frame)
	if err != nil {
		r.log.Error("RX loop: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			frame, err := r.reader.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				r.log.Error("RX error: %v", err)
				continue
			}
			if frame.ID != fbFrame.ID {
				continue
			}

			pv, err := r.smap.DecodeSignal(frame, r.profile.Feedback.Frame, r.profile.Feedback.Signal)
			if err != nil {
				r.log.Error("RX decode: %v", err)
				continue
			}

			select {
			case out <- feedback{Value: pv, Timestamp: time.Now()}:
			default:
				// Channel full, skip
			}
		}
	}
}
