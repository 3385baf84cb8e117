package input

import (
	"time"

	"github.com/jhanninen/bytewax/pkg/capability"
	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/epoch"
	"github.com/jhanninen/bytewax/pkg/probe"
)

// DynamicConfig configures a DynamicInput: the same scheduling skeleton
// as PartitionedConfig, simplified to one partition per worker, with no
// loads, no snapshot output, and no primaries routing.
type DynamicConfig struct {
	StepID        dataflow.StepID
	EpochInterval epoch.Interval
	Worker        dataflow.WorkerIndex
	WorkerCount   dataflow.WorkerCount

	Source StatelessSource
	Clock  dataflow.Clock
	Probe  probe.Probe
	Abort  AbortFlag
	Items  ItemSink
	Log    Logger
}

// Validate is the same eager-construction-time check PartitionedConfig
// uses.
func (c DynamicConfig) Validate() error {
	if c.StepID == "" {
		return &dataflow.ConfigError{Component: "input.DynamicInput", Reason: "StepID must not be empty"}
	}
	if c.EpochInterval.Duration() <= 0 {
		return &dataflow.ConfigError{Component: "input.DynamicInput", Reason: "EpochInterval must be positive"}
	}
	if c.Source == nil {
		return &dataflow.ConfigError{Component: "input.DynamicInput", Reason: "Source must not be nil"}
	}
	if c.Clock == nil {
		return &dataflow.ConfigError{Component: "input.DynamicInput", Reason: "Clock must not be nil"}
	}
	if c.Items == nil {
		return &dataflow.ConfigError{Component: "input.DynamicInput", Reason: "Items sink must not be nil"}
	}
	return nil
}

// DynamicInput drives one worker's single stateless partition. It is
// built lazily on its first Activate and torn down exactly once on Eof;
// after teardown it stays quiescent.
type DynamicInput struct {
	cfg DynamicConfig
	log Logger

	part          StatelessPartition
	downstreamCap capability.Capability
	epochStarted  time.Time
	nextAwake     *time.Time
	done          bool
}

// NewDynamicInput validates cfg and returns a DynamicInput. The partition
// itself is not built until the first Activate call, so Build runs under
// the same clock the operator polls with.
func NewDynamicInput(cfg DynamicConfig) (*DynamicInput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	return &DynamicInput{cfg: cfg, log: log}, nil
}

// ActivateNow calls Activate with the current time from the configured
// Clock, the form production wiring should use.
func (in *DynamicInput) ActivateNow() (Schedule, error) {
	return in.Activate(in.cfg.Clock.Now())
}

// Activate runs one activation: build the partition on first call, gate
// on backpressure and the awake schedule, poll at most once, run the
// epoch-advance check (no snapshot, since this partition is stateless),
// and tear down on Eof.
func (in *DynamicInput) Activate(now time.Time) (Schedule, error) {
	if in.done {
		return Schedule{}, nil
	}

	if in.part == nil {
		part, err := in.cfg.Source.Build(now, in.cfg.Worker, in.cfg.WorkerCount)
		if err != nil {
			return Schedule{}, dataflow.WrapUserError(in.cfg.StepID, "", "Build", err)
		}
		awake, err := part.NextAwake()
		if err != nil {
			return Schedule{}, dataflow.WrapUserError(in.cfg.StepID, "", "NextAwake", err)
		}
		in.part = part
		in.downstreamCap = capability.New(DownstreamPort, 0)
		in.epochStarted = now
		in.nextAwake = awake
	}

	if in.cfg.Probe != nil && in.cfg.Probe.LessThan(in.downstreamCap.Time()) {
		return in.schedule(now), nil
	}
	if in.nextAwake != nil && now.Before(*in.nextAwake) {
		return in.schedule(now), nil
	}

	batch, err := in.part.NextBatch(now, in.nextAwake)
	if err != nil {
		return Schedule{}, dataflow.WrapUserError(in.cfg.StepID, "", "NextBatch", err)
	}

	isEOF := false
	switch batch.Kind {
	case dataflow.BatchItems:
		if len(batch.Items) > 0 {
			in.cfg.Items.EmitItems(in.downstreamCap.Time(), "", batch.Items)
		}
		next, err := in.part.NextAwake()
		if err != nil {
			return Schedule{}, dataflow.WrapUserError(in.cfg.StepID, "", "NextAwake", err)
		}
		in.nextAwake = defaultNextAwake(now, next, len(batch.Items))
	case dataflow.BatchEOF:
		isEOF = true
	case dataflow.BatchAbort:
		in.cfg.Abort.Store(true)
	}

	if isEOF || now.Sub(in.epochStarted) >= in.cfg.EpochInterval.Duration() {
		in.downstreamCap.Downgrade(in.downstreamCap.Time().Next())
		in.epochStarted = now
	}

	if isEOF {
		if err := in.part.Close(); err != nil {
			in.log.Warn("partition close failed", "step", in.cfg.StepID, "err", err)
		}
		in.part = nil
		in.done = true
		return Schedule{}, nil
	}

	return in.schedule(now), nil
}

// schedule: if nextAwake is nil, self-activate immediately. Busy polling
// is fine here, since defaultNextAwake already applied a cooldown
// whenever the partition was actually idle. Otherwise activate at
// nextAwake.
func (in *DynamicInput) schedule(now time.Time) Schedule {
	if in.done {
		return Schedule{}
	}
	if in.nextAwake == nil {
		return Schedule{Activate: true}
	}
	after := in.nextAwake.Sub(now)
	if after < 0 {
		after = 0
	}
	return Schedule{Activate: true, After: after}
}
