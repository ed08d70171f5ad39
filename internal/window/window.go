// Package window defines the canonical telemetry window handed to detection agents.
//
// A Window is an ordered slice of sensor samples covering a bounded recent
// interval. It is immutable once built: agents receive it by value and must
// not retain or mutate the sample slice.
package window

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a window is empty or its samples are out of order.
// An agent receiving an invalid window skips it for the cycle; the cycle itself continues.
var ErrInvalidWindow = errors.New("window: invalid telemetry window")

// Sample is a single timestamped sensor reading from the rig data feed.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	// Depth is measured depth in feet.
	Depth float64 `json:"depth"`
	// WOB is weight on bit in klbs.
	WOB float64 `json:"wob"`
	// ROP is rate of penetration in ft/hr.
	ROP float64 `json:"rop"`
	// RPM is rotary speed.
	RPM float64 `json:"rpm"`
	// Torque is surface torque in kft-lbs.
	Torque float64 `json:"torque"`
	// SPP is standpipe pressure in psi.
	SPP float64 `json:"spp"`
	// FlowRate is mud flow rate in gpm.
	FlowRate float64 `json:"flowRate"`
	// ECD is equivalent circulating density in ppg.
	ECD float64 `json:"ecd"`
	// HookLoad is hook load in klbs.
	HookLoad float64 `json:"hookLoad"`
}

// Window is an ordered sequence of samples closed at End. Samples are ordered
// by non-decreasing timestamp; End is the timestamp of the latest sample.
type Window struct {
	Samples []Sample  `json:"samples"`
	End     time.Time `json:"end"`
}

// New builds a Window from samples, validating ordering. Returns ErrInvalidWindow
// (wrapped with detail) if samples is empty or timestamps decrease.
func New(samples []Sample) (Window, error) {
	if len(samples) == 0 {
		return Window{}, fmt.Errorf("%w: no samples", ErrInvalidWindow)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			return Window{}, fmt.Errorf("%w: sample %d out of order", ErrInvalidWindow, i)
		}
	}
	return Window{Samples: samples, End: samples[len(samples)-1].Timestamp}, nil
}

// Validate checks the window the way New does. Used for windows decoded off the wire.
func (w Window) Validate() error {
	_, err := New(w.Samples)
	return err
}

// Latest returns the most recent sample. Callers must ensure the window is non-empty.
func (w Window) Latest() Sample {
	return w.Samples[len(w.Samples)-1]
}
