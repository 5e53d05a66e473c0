package utils

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Sample captures one control cycle for offline analysis.
type Sample struct {
	T            float64
	Setpoint     float64
	Process      float64
	Error        float64
	Proportional float64
	Integral     float64
	Derivative   float64
	Output       float64
	Saturated    bool
}

// Recorder accumulates per-cycle samples of a control run.
type Recorder struct {
	samples []Sample
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(s Sample) {
	r.samples = append(r.samples, s)
}

func (r *Recorder) Len() int {
	return len(r.samples)
}

// Summary condenses a run for the end-of-run log line.
type Summary struct {
	Cycles          int
	MeanError       float64
	StdDevError     float64
	MaxAbsError     float64
	MeanOutput      float64
	StdDevOutput    float64
	SaturatedCycles int
}

// Summary computes run statistics over all recorded samples.
func (r *Recorder) Summary() Summary {
	s := Summary{Cycles: len(r.samples)}
	if s.Cycles == 0 {
		return s
	}

	errs := make([]float64, len(r.samples))
	outs := make([]float64, len(r.samples))
	for i, smp := range r.samples {
		errs[i] = smp.Error
		outs[i] = smp.Output
		if a := math.Abs(smp.Error); a > s.MaxAbsError {
			s.MaxAbsError = a
		}
		if smp.Saturated {
			s.SaturatedCycles++
		}
	}

	s.MeanError, s.StdDevError = stat.MeanStdDev(errs, nil)
	s.MeanOutput, s.StdDevOutput = stat.MeanStdDev(outs, nil)
	if len(r.samples) < 2 {
		// MeanStdDev yields NaN stddev for a single sample.
		s.StdDevError = 0
		s.StdDevOutput = 0
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("cycles=%d err_mean=%.4f err_std=%.4f err_max=%.4f out_mean=%.4f out_std=%.4f saturated=%d",
		s.Cycles, s.MeanError, s.StdDevError, s.MaxAbsError, s.MeanOutput, s.StdDevOutput, s.SaturatedCycles)
}

// WriteCSV dumps all samples to path, overwriting any previous run.
func (r *Recorder) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"t_s", "setpoint", "process", "error", "p", "i", "d", "output", "saturated"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, smp := range r.samples {
		rec := []string{
			fmtF(smp.T), fmtF(smp.Setpoint), fmtF(smp.Process), fmtF(smp.Error),
			fmtF(smp.Proportional), fmtF(smp.Integral), fmtF(smp.Derivative), fmtF(smp.Output),
			strconv.FormatBool(smp.Saturated),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'g', 9, 64)
}
