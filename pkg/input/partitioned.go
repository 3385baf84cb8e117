package input

import (
	"fmt"
	"sort"
	"time"

	"github.com/jhanninen/bytewax/pkg/capability"
	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/epoch"
	"github.com/jhanninen/bytewax/pkg/probe"
)

// errRoutingMismatch reports a load routed to the wrong worker: the
// recovery store must only ever hand a worker loads for keys it is
// primary for.
func errRoutingMismatch(got, want dataflow.WorkerIndex) error {
	return fmt.Errorf("load routed to worker %d, expected %d", got, want)
}

// Logger receives best-effort teardown errors. Kept minimal and local to
// this package, the same way pkg/registry avoids importing internal/logging
// so leaf packages stay independently usable.
type Logger interface {
	Warn(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

const (
	// DownstreamPort carries opaque items produced by partitions.
	DownstreamPort capability.Port = iota
	// SnapPort carries Snapshot records.
	SnapPort
)

// PartitionedConfig configures a PartitionedInput. A plain struct with a
// Validate method rather than functional options, since the surface here
// is small and every field is required or has an obvious zero value.
type PartitionedConfig struct {
	StepID        dataflow.StepID
	EpochInterval epoch.Interval
	StartAt       dataflow.Epoch
	Worker        dataflow.WorkerIndex

	Source    StatefulSource
	Clock     dataflow.Clock
	Probe     probe.Probe
	Abort     AbortFlag
	Primaries PrimariesReader
	Loads     LoadsReader
	Items     ItemSink
	Snaps     SnapshotSink
	Log       Logger
}

// Validate checks required fields are present and the epoch interval is
// positive, returning a *dataflow.ConfigError if not.
func (c PartitionedConfig) Validate() error {
	if c.StepID == "" {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "StepID must not be empty"}
	}
	if c.EpochInterval.Duration() <= 0 {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "EpochInterval must be positive"}
	}
	if c.Source == nil {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "Source must not be nil"}
	}
	if c.Clock == nil {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "Clock must not be nil"}
	}
	if c.Primaries == nil || c.Loads == nil {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "Primaries and Loads readers must not be nil"}
	}
	if c.Items == nil || c.Snaps == nil {
		return &dataflow.ConfigError{Component: "input.PartitionedInput", Reason: "Items and Snaps sinks must not be nil"}
	}
	return nil
}

// partState is a single primary partition's in-memory state.
type partState struct {
	key           dataflow.StateKey
	part          StatefulPartition
	downstreamCap capability.Capability
	snapCap       capability.Capability
	epochStarted  time.Time
	nextAwake     *time.Time
}

// PartitionedInput drives one worker's share of a partitioned input
// operator. Activate is called once per scheduler activation; it is the
// Go analogue of the closure a timely-style scheduler would otherwise
// invoke.
type PartitionedInput struct {
	cfg PartitionedConfig
	log Logger

	initCapsDownstream *capability.Capability
	initCapsSnap       *capability.Capability

	pendingPrimaries  map[dataflow.Epoch][]PrimaryUpdate
	primariesFrontier dataflow.Epoch
	primariesEOF      bool

	primaryParts map[dataflow.StateKey]struct{}
	loadsEOF     bool

	parts map[dataflow.StateKey]*partState
}

// NewPartitionedInput validates cfg and constructs a PartitionedInput
// holding its two initial capabilities ("init caps"), both already
// downgraded to StartAt.
func NewPartitionedInput(cfg PartitionedConfig) (*PartitionedInput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	downstreamCap := capability.New(DownstreamPort, cfg.StartAt)
	snapCap := capability.New(SnapPort, cfg.StartAt)
	return &PartitionedInput{
		cfg:                cfg,
		log:                log,
		initCapsDownstream: &downstreamCap,
		initCapsSnap:       &snapCap,
		pendingPrimaries:   make(map[dataflow.Epoch][]PrimaryUpdate),
		primaryParts:       make(map[dataflow.StateKey]struct{}),
		parts:              make(map[dataflow.StateKey]*partState),
	}, nil
}

// ActivateNow calls Activate with the current time from the configured
// Clock. Production wiring should call this; Activate itself takes an
// explicit time so tests can drive the operator deterministically without
// a real clock.
func (in *PartitionedInput) ActivateNow() (Schedule, error) {
	return in.Activate(in.cfg.Clock.Now())
}

// Activate runs one full activation: drain primaries, drain loads
// (fast-forwarding resumed partitions), apply closed primary epochs,
// cold-initialize on loads EOF, poll every partition once, remove EOF'd
// partitions, and decide the next self-activation.
func (in *PartitionedInput) Activate(now time.Time) (Schedule, error) {
	in.drainPrimaries()
	if err := in.drainLoads(now); err != nil {
		return Schedule{}, err
	}
	in.applyClosedPrimaryEpochs()
	if err := in.coldInit(now); err != nil {
		return Schedule{}, err
	}
	if err := in.pollPartitions(now); err != nil {
		return Schedule{}, err
	}
	return in.schedule(now), nil
}

// drainPrimaries is step 1: buffer newly broadcast assignments by the
// epoch they arrived at.
func (in *PartitionedInput) drainPrimaries() {
	batch, frontier, eof := in.cfg.Primaries.Poll()
	for _, u := range batch {
		in.pendingPrimaries[u.Epoch] = append(in.pendingPrimaries[u.Epoch], u)
	}
	in.primariesFrontier = frontier
	if eof {
		in.primariesEOF = true
	}
}

// drainLoads is step 2: for every resumed partition, build it immediately
// with its recovered state and fast-forward its capabilities to
// max(load_epoch, start_at), since a snapshot may predate start_at when
// no items flowed in between.
func (in *PartitionedInput) drainLoads(now time.Time) error {
	batch, eof := in.cfg.Loads.Poll()
	for _, ld := range batch {
		if ld.Worker != in.cfg.Worker {
			return &dataflow.UserError{
				StepID: in.cfg.StepID,
				Key:    ld.Key,
				Method: "drainLoads",
				Cause:  errRoutingMismatch(ld.Worker, in.cfg.Worker),
			}
		}
		if ld.Change.Delete {
			continue
		}

		part, err := in.cfg.Source.BuildPart(now, ld.Key, ld.Change.State)
		if err != nil {
			return dataflow.WrapUserError(in.cfg.StepID, ld.Key, "BuildPart", err)
		}
		awake, err := part.NextAwake()
		if err != nil {
			return dataflow.WrapUserError(in.cfg.StepID, ld.Key, "NextAwake", err)
		}

		target := ld.Epoch
		if in.cfg.StartAt > target {
			target = in.cfg.StartAt
		}
		in.parts[ld.Key] = &partState{
			key:           ld.Key,
			part:          part,
			downstreamCap: capability.New(DownstreamPort, target),
			snapCap:       capability.New(SnapPort, target),
			epochStarted:  now,
			nextAwake:     awake,
		}
	}
	if eof {
		in.loadsEOF = true
	}
	return nil
}

// applyClosedPrimaryEpochs is step 3: move assignments whose epoch has
// closed into primaryParts. No capability is consumed; this is pure
// bookkeeping.
func (in *PartitionedInput) applyClosedPrimaryEpochs() {
	for e, updates := range in.pendingPrimaries {
		if !in.primariesEOF && e >= in.primariesFrontier {
			continue
		}
		for _, u := range updates {
			if u.Primary == in.cfg.Worker {
				in.primaryParts[u.Key] = struct{}{}
			}
		}
		delete(in.pendingPrimaries, e)
	}
}

// coldInit is step 4: once the loads frontier reaches EOF, cold-build
// every primary partition that was not resumed from a load, at the init
// caps' epoch, then release the init caps.
//
// This is sound only because every cold partition resumes at the same
// epoch as the init caps (StartAt). A scheme that wanted cold partitions
// to resume at distinct epochs would need per-partition capability
// derivation instead.
func (in *PartitionedInput) coldInit(now time.Time) error {
	if !in.loadsEOF || in.initCapsDownstream == nil {
		return nil
	}
	keys := make([]dataflow.StateKey, 0, len(in.primaryParts))
	for key := range in.primaryParts {
		if _, exists := in.parts[key]; !exists {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, key := range keys {
		part, err := in.cfg.Source.BuildPart(now, key, nil)
		if err != nil {
			return dataflow.WrapUserError(in.cfg.StepID, key, "BuildPart", err)
		}
		awake, err := part.NextAwake()
		if err != nil {
			return dataflow.WrapUserError(in.cfg.StepID, key, "NextAwake", err)
		}
		in.parts[key] = &partState{
			key:           key,
			part:          part,
			downstreamCap: *in.initCapsDownstream,
			snapCap:       *in.initCapsSnap,
			epochStarted:  now,
			nextAwake:     awake,
		}
	}
	in.initCapsDownstream = nil
	in.initCapsSnap = nil
	return nil
}

// pollPartitions is step 5 (and steps 6 by side effect): poll every
// partition at most once in key order, gated by backpressure and the
// awake schedule, then run the conditional epoch advance + snapshot and
// remove any partition that reached EOF.
func (in *PartitionedInput) pollPartitions(now time.Time) error {
	keys := make([]dataflow.StateKey, 0, len(in.parts))
	for key := range in.parts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, key := range keys {
		ps := in.parts[key]
		currentEpoch := ps.downstreamCap.Time()

		if in.cfg.Probe != nil && in.cfg.Probe.LessThan(currentEpoch) {
			continue
		}
		if ps.nextAwake != nil && now.Before(*ps.nextAwake) {
			continue
		}

		batch, err := ps.part.NextBatch(now, ps.nextAwake)
		if err != nil {
			return dataflow.WrapUserError(in.cfg.StepID, key, "NextBatch", err)
		}

		isEOF := false
		switch batch.Kind {
		case dataflow.BatchItems:
			if len(batch.Items) > 0 {
				in.cfg.Items.EmitItems(currentEpoch, key, batch.Items)
			}
			next, err := ps.part.NextAwake()
			if err != nil {
				return dataflow.WrapUserError(in.cfg.StepID, key, "NextAwake", err)
			}
			ps.nextAwake = defaultNextAwake(now, next, len(batch.Items))
		case dataflow.BatchEOF:
			isEOF = true
		case dataflow.BatchAbort:
			// Abort does not skip the epoch-advance check below. Skipping it
			// would change recovery semantics for partitions that aborted
			// mid-batch, since their last snapshot would no longer reflect
			// the epoch boundary.
			in.cfg.Abort.Store(true)
		}

		if isEOF || now.Sub(ps.epochStarted) >= in.cfg.EpochInterval.Duration() {
			if err := in.advanceEpoch(ps, now); err != nil {
				return err
			}
		}

		if isEOF {
			if err := ps.part.Close(); err != nil {
				in.log.Warn("partition close failed", "step", in.cfg.StepID, "key", key, "err", err)
			}
			delete(in.parts, key)
		}
	}
	return nil
}

// advanceEpoch snapshots a partition, emits it, and downgrades both of
// the partition's capabilities to epoch+1. Exactly one Upsert Snapshot is
// emitted per (partition, epoch) transition.
func (in *PartitionedInput) advanceEpoch(ps *partState, now time.Time) error {
	state, err := ps.part.Snapshot()
	if err != nil {
		return dataflow.WrapUserError(in.cfg.StepID, ps.key, "Snapshot", err)
	}
	current := ps.downstreamCap.Time()
	in.cfg.Snaps.EmitSnapshot(dataflow.Snapshot{
		StepID: in.cfg.StepID,
		Key:    ps.key,
		Epoch:  current,
		Change: dataflow.Upsert(state),
	})
	next := current.Next()
	ps.downstreamCap.Downgrade(next)
	ps.snapCap.Downgrade(next)
	ps.epochStarted = now
	return nil
}

// defaultNextAwake implements the default-next-awake rule: prefer the
// user's own answer; otherwise re-poll immediately if items were just
// emitted, or apply the default cooldown if the partition was idle.
func defaultNextAwake(now time.Time, userNext *time.Time, itemCount int) *time.Time {
	if userNext != nil {
		return userNext
	}
	if itemCount > 0 {
		return nil
	}
	t := now.Add(epoch.DefaultCooldown)
	return &t
}

// schedule is step 7: decide whether and when to self-activate.
func (in *PartitionedInput) schedule(now time.Time) Schedule {
	if !in.loadsEOF {
		return Schedule{}
	}
	if len(in.parts) == 0 {
		return Schedule{}
	}
	min := now
	found := false
	for _, ps := range in.parts {
		awake := now
		if ps.nextAwake != nil {
			awake = *ps.nextAwake
		}
		if !found || awake.Before(min) {
			min = awake
			found = true
		}
	}
	after := min.Sub(now)
	if after < 0 {
		after = 0
	}
	return Schedule{Activate: true, After: after}
}
