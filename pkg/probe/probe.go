// Package probe models the scheduler-provided backpressure observer:
// something that answers whether any data at a given epoch is still in
// flight downstream. Input operators use it as the sole mechanism
// preventing a fast producer from outpacing recovery.
package probe

import (
	"sync"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// Probe reports whether any output at an epoch earlier than a given epoch
// may still be in flight downstream of the point it observes.
type Probe interface {
	// LessThan reports whether this probe's frontier is strictly behind
	// epoch, i.e. whether downstream has not yet finished epoch.
	LessThan(epoch dataflow.Epoch) bool
}

// Handle is the concrete default Probe: it tracks a single downstream
// frontier, moved forward only by Advance, guarded by a single mutex so
// concurrent reads from multiple input operators stay consistent against
// one writer (the scheduler).
type Handle struct {
	mu       sync.RWMutex
	frontier dataflow.Epoch
}

// NewHandle returns a Handle whose frontier starts at epoch 0, since
// nothing has been processed downstream yet.
func NewHandle() *Handle {
	return &Handle{}
}

// LessThan implements Probe.
func (h *Handle) LessThan(epoch dataflow.Epoch) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frontier < epoch
}

// Advance moves the frontier forward. Called by the scheduler (or, in
// tests, directly) as downstream operators finish epochs. A no-op if
// epoch is behind the current frontier.
func (h *Handle) Advance(epoch dataflow.Epoch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if epoch > h.frontier {
		h.frontier = epoch
	}
}

// Frontier returns the current frontier, mainly for tests and metrics.
func (h *Handle) Frontier() dataflow.Epoch {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frontier
}

// AlwaysClear is a Probe that never backpressures, useful in tests and in
// dataflows with no downstream recovery dependency.
type AlwaysClear struct{}

// LessThan always returns false.
func (AlwaysClear) LessThan(dataflow.Epoch) bool { return false }
