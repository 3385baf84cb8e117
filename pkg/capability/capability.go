// Package capability models move-only emission tokens: a Capability(t)
// grants the right to emit on one output port at epoch t, and can only be
// downgraded forward in time.
//
// Go has no linear types, so unlike the timely-dataflow capabilities this
// is modeled after, nothing stops a caller from retaining a stale copy.
// Capability is a plain value type with no shared backing state: each
// holder (each partition's state record, for example) owns an independent
// instance, and downgrading one instance has no effect on any other copy
// taken from the same origin. The invariant that matters in practice is
// enforced by convention instead: exactly one Capability per (port,
// partition) is ever downgraded on a partition's behalf, by the code path
// that owns that partition's state, so no two downgrades race for the
// same logical token.
package capability

import (
	"fmt"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// Port identifies an operator's output, e.g. the downstream items port or
// the snapshot port.
type Port int

// Capability is ownership of the right to emit at Time() on Port().
type Capability struct {
	port Port
	time dataflow.Epoch
}

// New constructs a capability at the given starting epoch for a port. Used
// only by operator builders handing out their initial capabilities.
func New(port Port, at dataflow.Epoch) Capability {
	return Capability{port: port, time: at}
}

// Port returns the output this capability authorizes emission on.
func (c Capability) Port() Port { return c.port }

// Time returns the epoch this capability currently authorizes.
func (c Capability) Time() dataflow.Epoch { return c.time }

// Downgrade moves the capability forward to t. It panics if t < Time(),
// since that would violate the epoch-monotonicity invariant: a programmer
// error in the operator, not a runtime condition to recover from.
func (c *Capability) Downgrade(t dataflow.Epoch) {
	if t < c.time {
		panic(fmt.Sprintf("capability: cannot downgrade port %d from epoch %d back to %d", c.port, c.time, t))
	}
	c.time = t
}

// DelayedForOutput returns a new capability for a different port, set to
// epoch t. Used when an operator holds one set of initial capabilities
// but must mint a capability for a specific partition's output at a
// possibly later epoch, such as on cold-init or when resuming a
// partition from a recovered load.
func (c Capability) DelayedForOutput(t dataflow.Epoch, port Port) Capability {
	return Capability{port: port, time: t}
}
