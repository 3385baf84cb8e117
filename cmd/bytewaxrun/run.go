package main

import (
	"context"
	"fmt"
	"math"
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
	"github.com/jhanninen/bytewax/pkg/recovery"
	"github.com/jhanninen/bytewax/pkg/registry"
	"github.com/jhanninen/bytewax/pkg/window"
)

var (
	runWorkers       int
	runPartitions    int
	runMaxItems      int64
	runStepID        string
	runEpochInterval time.Duration
	runWindowLength  time.Duration
	runWindowOffset  time.Duration
	runStoreDir      string
	runCodecName     string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the demo partitioned-input dataflow locally",
		Long: `run wires a toy counting StatefulSource into one partitioned input
operator per worker (pkg/input.PartitionedInput), feeds every emitted item
through a sliding windower (pkg/window), and persists per-partition
snapshots to a local recovery store (pkg/recovery), so that re-running
against the same --store-dir resumes from where the previous run left
off.`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 2, "number of local workers to run")
	runCmd.Flags().IntVar(&runPartitions, "partitions", 4, "number of counter partitions")
	runCmd.Flags().Int64Var(&runMaxItems, "max-items", 20, "items each partition emits before reaching EOF (0 = unbounded)")
	runCmd.Flags().StringVar(&runStepID, "step", "counter", "step id to namespace snapshots under")
	runCmd.Flags().DurationVar(&runEpochInterval, "epoch-interval", 2*time.Second, "wall-clock interval between epoch boundaries")
	runCmd.Flags().DurationVar(&runWindowLength, "window-length", 10*time.Second, "sliding window length")
	runCmd.Flags().DurationVar(&runWindowOffset, "window-offset", 5*time.Second, "sliding window offset (== length for tumbling windows)")
	runCmd.Flags().StringVar(&runStoreDir, "store-dir", "./bytewax-data", "directory holding the local recovery log")
	runCmd.Flags().StringVar(&runCodecName, "codec", "zstd", "snapshot compression codec: none, zstd, snappy, or lz4")
}

func selectCodec(name string) (recovery.Codec, error) {
	switch name {
	case "none":
		return recovery.NoopCodec{}, nil
	case "zstd":
		return recovery.ZstdCodec{}, nil
	case "snappy":
		return recovery.SnappyCodec{}, nil
	case "lz4":
		return recovery.LZ4Codec{}, nil
	default:
		return nil, fmt.Errorf("unknown --codec %q", name)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.NewSlog(nil)

	codec, err := selectCodec(runCodecName)
	if err != nil {
		return err
	}
	codecs := recovery.NewRegistry(recovery.NoopCodec{}, recovery.ZstdCodec{}, recovery.SnappyCodec{}, recovery.LZ4Codec{})

	interval, err := epoch.NewInterval(runEpochInterval)
	if err != nil {
		return err
	}

	store, err := recovery.NewFileStore(runStoreDir)
	if err != nil {
		return fmt.Errorf("open recovery store at %s: %w", runStoreDir, err)
	}

	source := newCounterSource(runPartitions, runMaxItems)
	workerCount := dataflow.WorkerCount(runWorkers)

	assignments, err := registry.CollateViews(ctx, workerCount, func(ctx context.Context, _ dataflow.WorkerIndex) ([]dataflow.StateKey, error) {
		return source.ListParts(ctx)
	}, nil)
	if err != nil {
		return fmt.Errorf("collate partition registry: %w", err)
	}

	primariesByWorker := make(map[dataflow.WorkerIndex][]input.PrimaryUpdate, runWorkers)
	primaryOf := make(map[dataflow.StateKey]dataflow.WorkerIndex, len(assignments))
	for _, a := range assignments {
		primaryOf[a.Key] = a.Primary
		primariesByWorker[a.Primary] = append(primariesByWorker[a.Primary], input.PrimaryUpdate{
			Epoch:   0,
			Key:     a.Key,
			Primary: a.Primary,
		})
		log.Info("partition assigned", "key", string(a.Key), "worker", int(a.Primary))
	}

	loads, err := loadsByWorker(ctx, store, dataflow.StepID(runStepID), dataflow.Epoch(math.MaxUint64), codecs, primaryOf)
	if err != nil {
		return fmt.Errorf("load recovered snapshots: %w", err)
	}

	windower := window.NewSliding(runWindowLength, runWindowOffset, time.Time{})
	items := &windowSink{windower: windower, log: log}
	snaps := &storeSnapSink{store: store, codec: codec, log: log}
	abort := &atomic.Bool{}

	group := runtime.New(ctx)
	for w := 0; w < runWorkers; w++ {
		worker := dataflow.WorkerIndex(w)
		pi, err := input.NewPartitionedInput(input.PartitionedConfig{
			StepID:        dataflow.StepID(runStepID),
			EpochInterval: interval,
			StartAt:       0,
			Worker:        worker,
			Source:        source,
			Clock:         clockz.RealClock,
			Probe:         probe.AlwaysClear{},
			Abort:         abort,
			Primaries:     &oneShotPrimaries{batch: primariesByWorker[worker]},
			Loads:         &oneShotLoads{batch: loads[worker]},
			Items:         items,
			Snaps:         snaps,
			Log:           log,
		})
		if err != nil {
			return fmt.Errorf("build worker %d: %w", w, err)
		}
		group.Go(func(ctx context.Context) error {
			return driveWorker(ctx, pi, worker, log)
		})
	}

	return group.Wait()
}

// driveWorker repeatedly activates pi until it goes quiescent (every
// partition reached EOF) or ctx is cancelled, sleeping between
// activations for however long the operator's own schedule asks for.
func driveWorker(ctx context.Context, pi *input.PartitionedInput, worker dataflow.WorkerIndex, log logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sched, err := pi.ActivateNow()
		if err != nil {
			return fmt.Errorf("worker %d: %w", int(worker), err)
		}
		if !sched.Activate {
			log.Info("worker quiescent", "worker", int(worker))
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
