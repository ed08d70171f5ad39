package agent

import (
	"sync/atomic"
	"time"
)

// ModelState is the adaptable parameter set of one agent. Exactly one live
// snapshot exists per agent type, held by its StateHolder. A ModelState is
// never mutated after publication; updates build a new value and swap it in.
type ModelState struct {
	// Sensitivity scales the agent's raw score toward alerting (0..1).
	// For the ROP agent this is the optimization aggressiveness.
	Sensitivity float64 `json:"sensitivity"`
	// Weights are the factor mixing weights in agent-specific order.
	// They sum to 1 within tolerance; the constraint checker enforces it.
	Weights []float64 `json:"weights"`
	// Version increments on every accepted swap.
	Version int64 `json:"version"`
	// UpdatedAt is when this snapshot was published.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can build a candidate delta without
// touching the snapshot readers may be using.
func (s ModelState) Clone() ModelState {
	out := s
	out.Weights = append([]float64(nil), s.Weights...)
	return out
}

// StateHolder publishes ModelState snapshots with atomic pointer swaps.
// Readers (inference) load a consistent snapshot and keep using it for the
// whole Predict call; writers (adaptation) swap a validated copy in without
// ever blocking a reader.
type StateHolder struct {
	ptr atomic.Pointer[ModelState]
}

// NewStateHolder creates a holder seeded with the given initial state.
func NewStateHolder(initial ModelState) *StateHolder {
	h := &StateHolder{}
	init := initial.Clone()
	h.ptr.Store(&init)
	return h
}

// Load returns a copy of the current snapshot. The copy stays valid for the
// caller even if a swap happens concurrently.
func (h *StateHolder) Load() ModelState {
	return h.ptr.Load().Clone()
}

// Swap publishes next as the new snapshot, stamping version and time.
// Callers must have validated next through the physics constraint checker;
// Swap itself performs no validation.
func (h *StateHolder) Swap(next ModelState) ModelState {
	prev := h.ptr.Load()
	published := next.Clone()
	published.Version = prev.Version + 1
	published.UpdatedAt = time.Now().UTC()
	h.ptr.Store(&published)
	return published.Clone()
}
