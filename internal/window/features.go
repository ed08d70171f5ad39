package window

import (
	"math"
	"time"
)

// assumed bit diameter in inches for the MSE calculation when no bit record is available.
const defaultBitDiameter = 8.5

// Stats summarizes one sensor channel over the window.
type Stats struct {
	Mean float64
	Std  float64
	// Rate is the change per minute between the first and last sample.
	Rate float64
}

// Features holds per-channel statistics and physics-derived quantities for one window.
// Agents read features; they never recompute them from raw samples.
type Features struct {
	Latest Sample

	WOB      Stats
	ROP      Stats
	RPM      Stats
	Torque   Stats
	SPP      Stats
	FlowRate Stats

	// MSE is mechanical specific energy in psi (Teale's formula with an assumed bit diameter).
	MSE float64
	// HoleCleaningIndex is 0..1; low values mean poor cuttings transport.
	HoleCleaningIndex float64
	// DifferentialPressure is the overbalance between hydrostatic and pore pressure in psi.
	DifferentialPressure float64
	// DragFactor is measured hook load over the theoretical free-hanging string weight, 0.1..1.
	DragFactor float64
}

// ComputeFeatures derives per-channel stats and physics quantities from the window.
// The window must be valid; call Validate first on untrusted input.
func ComputeFeatures(w Window) Features {
	f := Features{Latest: w.Latest()}

	f.WOB = channelStats(w, func(s Sample) float64 { return s.WOB })
	f.ROP = channelStats(w, func(s Sample) float64 { return s.ROP })
	f.RPM = channelStats(w, func(s Sample) float64 { return s.RPM })
	f.Torque = channelStats(w, func(s Sample) float64 { return s.Torque })
	f.SPP = channelStats(w, func(s Sample) float64 { return s.SPP })
	f.FlowRate = channelStats(w, func(s Sample) float64 { return s.FlowRate })

	latest := f.Latest

	// Mechanical specific energy from WOB, RPM, torque and ROP.
	if latest.WOB > 0 && latest.RPM > 0 && latest.ROP > 0 {
		d2 := defaultBitDiameter * defaultBitDiameter
		f.MSE = 4*latest.WOB*1000/(math.Pi*d2) +
			(480*latest.RPM*latest.Torque)/(math.Pi*d2*latest.ROP)
	}

	// Hole cleaning index: flow rate and RPM improve transport, ROP loads the annulus.
	if latest.FlowRate > 0 && latest.RPM > 0 {
		f.HoleCleaningIndex = clamp(
			0.5+0.3*(latest.FlowRate/800)+0.2*(latest.RPM/150)-0.1*(latest.ROP/50),
			0.1, 1.0)
	}

	// Overbalance from ECD hydrostatic head against a 0.45 psi/ft pore gradient.
	if latest.ECD > 0 && latest.Depth > 0 {
		hydrostatic := 0.052 * latest.ECD * latest.Depth
		pore := 0.45 * latest.Depth
		f.DifferentialPressure = math.Max(0, hydrostatic-pore)
	}

	// Drag factor against a 20 lbs/ft string weight model.
	if latest.HookLoad > 0 && latest.Depth > 0 {
		theoretical := latest.Depth * 0.02
		if theoretical > 0 {
			f.DragFactor = clamp(latest.HookLoad/theoretical, 0.1, 1.0)
		}
	}

	return f
}

func channelStats(w Window, get func(Sample) float64) Stats {
	n := len(w.Samples)
	if n == 0 {
		return Stats{}
	}
	var sum float64
	for _, s := range w.Samples {
		sum += get(s)
	}
	mean := sum / float64(n)

	var sq float64
	for _, s := range w.Samples {
		d := get(s) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))

	first, last := w.Samples[0], w.Samples[n-1]
	rate := 0.0
	if dt := last.Timestamp.Sub(first.Timestamp); dt > 0 {
		rate = (get(last) - get(first)) / dt.Minutes()
	}
	return Stats{Mean: mean, Std: std, Rate: rate}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Age returns how far behind now the window's end is.
func (w Window) Age(now time.Time) time.Duration {
	return now.Sub(w.End)
}
