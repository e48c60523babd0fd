// Package calibration maps raw model similarity scores onto a shared [0,1]
// scale so that models with different score distributions can be compared.
package calibration

import "math"

// TemperatureParams configures the affine calibration for one model.
// Calibration is disabled when Enabled is false.
type TemperatureParams struct {
	Enabled     bool    `json:"enabled"`
	Temperature float64 `json:"temperature"`
	Shift       float64 `json:"shift"`
}

// Result is a calibrated score plus whether the raw input fell outside [0,1].
type Result struct {
	Score   float64
	Clamped bool
}

// Calibrate maps raw to clamp((clamp(raw,0,1)+shift)*temperature, 0, 1).
// Disabled params return the clamped raw score unchanged. The mapping is
// non-decreasing in raw whenever temperature is positive.
func Calibrate(raw float64, p TemperatureParams) Result {
	in, clamped := clampUnit(raw)
	if !p.Enabled {
		return Result{Score: in, Clamped: clamped}
	}
	out, _ := clampUnit((in + p.Shift) * p.Temperature)
	return Result{Score: out, Clamped: clamped}
}

// Score is Calibrate without the clamp flag.
func Score(raw float64, p TemperatureParams) float64 {
	return Calibrate(raw, p).Score
}

func clampUnit(v float64) (float64, bool) {
	switch {
	case math.IsNaN(v):
		return 0, true
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}
