// Package input implements the partitioned and dynamic input operators:
// per-worker driver loops that build user partitions, pump batches
// downstream, advance per-partition epochs, emit snapshots, and honor
// backpressure.
//
// Neither operator assumes a particular scheduler. They depend only on
// the minimal contracts a scheduler is expected to supply: an activation
// callback, input handles that report their own frontier, and a probe.
// Those contracts are the interfaces below.
package input

import (
	"context"
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// StatefulPartition is a single partition of a StatefulSource.
type StatefulPartition interface {
	// NextBatch returns the next outcome for this partition. scheduledAwake
	// is the wake time this partition itself requested last time, passed
	// back so a partition with no internal clock of its own can still
	// answer "has enough time passed".
	NextBatch(now time.Time, scheduledAwake *time.Time) (dataflow.Batch, error)
	// NextAwake is an advisory next wake time; nil means "no opinion".
	NextAwake() (*time.Time, error)
	// Snapshot must be pure and idempotent within an epoch.
	Snapshot() ([]byte, error)
	// Close is best-effort teardown; the operator logs but does not
	// propagate its error.
	Close() error
}

// StatefulSource builds StatefulPartitions and reports the partitions it
// can host. Consumed by PartitionedInput (C3).
type StatefulSource interface {
	// ListParts is pure and called once per worker, to seed the partition
	// registry (pkg/registry).
	ListParts(ctx context.Context) ([]dataflow.StateKey, error)
	// BuildPart constructs (or resumes, if resumeState is non-nil) a
	// partition.
	BuildPart(now time.Time, key dataflow.StateKey, resumeState []byte) (StatefulPartition, error)
}

// StatelessPartition is the single per-worker partition of a
// StatelessSource; it never snapshots.
type StatelessPartition interface {
	NextBatch(now time.Time, scheduledAwake *time.Time) (dataflow.Batch, error)
	NextAwake() (*time.Time, error)
	Close() error
}

// StatelessSource builds the one partition a worker owns for the lifetime
// of a run. Consumed by DynamicInput (C4).
type StatelessSource interface {
	Build(now time.Time, worker dataflow.WorkerIndex, workerCount dataflow.WorkerCount) (StatelessPartition, error)
}

// PrimaryUpdate is one entry on the primaries stream: the output of the
// partition registry (pkg/registry), naming the primary worker for a key
// as of Epoch.
type PrimaryUpdate struct {
	Epoch   dataflow.Epoch
	Key     dataflow.StateKey
	Primary dataflow.WorkerIndex
}

// PrimariesReader drains newly broadcast primary assignments for this
// worker. Frontier reports the input frontier for this port: no future
// update will arrive at an epoch strictly less than frontier. Eof reports
// the stream is fully exhausted, which happens once the registry has
// collated all views and broadcast its one-shot assignment.
type PrimariesReader interface {
	Poll() (batch []PrimaryUpdate, frontier dataflow.Epoch, eof bool)
}

// LoadsReader drains recovered per-partition snapshots, routed to the
// worker that is now primary for each key, timestamped at the epoch they
// were taken.
type LoadsReader interface {
	Poll() (batch []dataflow.Load, eof bool)
}

// ItemSink is the downstream output: opaque items produced by a partition,
// tagged with the epoch and partition key they were emitted at.
type ItemSink interface {
	EmitItems(epoch dataflow.Epoch, key dataflow.StateKey, items []any)
}

// SnapshotSink is the snap output: Snapshot records, exactly one per
// partition per epoch boundary.
type SnapshotSink interface {
	EmitSnapshot(snap dataflow.Snapshot)
}

// AbortFlag is the process-wide cooperative shutdown signal. *atomic.Bool
// satisfies this directly.
type AbortFlag interface {
	Store(bool)
}

// Schedule is an operator's self-activation decision for the scheduler.
type Schedule struct {
	// Activate reports whether another activation should be scheduled.
	Activate bool
	// After is how long from now that activation should occur; only
	// meaningful when Activate is true.
	After time.Duration
}
