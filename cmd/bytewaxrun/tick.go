package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"

	"github.com/jhanninen/bytewax/internal/logging"
	"github.com/jhanninen/bytewax/internal/runtime"
	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/epoch"
	"github.com/jhanninen/bytewax/pkg/input"
	"github.com/jhanninen/bytewax/pkg/probe"
)

var (
	tickWorkers       int
	tickStepID        string
	tickEpochInterval time.Duration
	tickDuration      time.Duration

	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Run the demo dynamic (stateless) input operator locally",
		Long: `tick wires a toy ticking StatelessSource into one dynamic input
operator per worker (pkg/input.DynamicInput), one partition per worker
with no snapshotting, and runs it for a fixed duration to demonstrate the
stateless counterpart to the partitioned 'run' command.`,
		RunE: runTick,
	}
)

func init() {
	tickCmd.Flags().IntVar(&tickWorkers, "workers", 2, "number of local workers to run")
	tickCmd.Flags().StringVar(&tickStepID, "step", "tick", "step id used to tag errors")
	tickCmd.Flags().DurationVar(&tickEpochInterval, "epoch-interval", time.Second, "wall-clock interval between epoch boundaries")
	tickCmd.Flags().DurationVar(&tickDuration, "duration", 5*time.Second, "how long to run before stopping every worker")
}

func runTick(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.NewSlog(nil)

	interval, err := epoch.NewInterval(tickEpochInterval)
	if err != nil {
		return err
	}

	abort := &atomic.Bool{}

	group := runtime.New(ctx)
	workerCount := dataflow.WorkerCount(tickWorkers)
	for w := 0; w < tickWorkers; w++ {
		worker := dataflow.WorkerIndex(w)
		di, err := input.NewDynamicInput(input.DynamicConfig{
			StepID:        dataflow.StepID(tickStepID),
			EpochInterval: interval,
			Worker:        worker,
			WorkerCount:   workerCount,
			Source:        tickSource{},
			Clock:         clockz.RealClock,
			Probe:         probe.AlwaysClear{},
			Abort:         abort,
			Items:         &tickItemSink{log: log},
			Log:           log,
		})
		if err != nil {
			return fmt.Errorf("build tick worker %d: %w", w, err)
		}
		group.Go(func(ctx context.Context) error {
			return driveDynamicWorker(ctx, di, worker, log)
		})
	}

	timer := time.NewTimer(tickDuration)
	defer timer.Stop()
	select {
	case <-timer.C:
		group.Stop()
	case <-ctx.Done():
		group.Stop()
	}
	return group.Wait()
}

// tickItemSink logs every emitted tickItem; DynamicInput has no
// snapshot output, so this is the whole of its downstream.
type tickItemSink struct {
	log logging.Logger
}

func (s *tickItemSink) EmitItems(epoch dataflow.Epoch, key dataflow.StateKey, items []any) {
	for _, raw := range items {
		item, ok := raw.(tickItem)
		if !ok {
			continue
		}
		s.log.Debug("tick", "worker", int(item.Worker), "seq", item.Seq, "epoch", uint64(epoch))
	}
}

func driveDynamicWorker(ctx context.Context, di *input.DynamicInput, worker dataflow.WorkerIndex, log logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sched, err := di.ActivateNow()
		if err != nil {
			return fmt.Errorf("tick worker %d: %w", int(worker), err)
		}
		if !sched.Activate {
			return nil
		}
		if sched.After <= 0 {
			continue
		}
		timer := time.NewTimer(sched.After)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
