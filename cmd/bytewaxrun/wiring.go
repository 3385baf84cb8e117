package main

import (
	"context"
	"sync"
	"time"

	"github.com/jhanninen/bytewax/internal/logging"
	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/input"
	"github.com/jhanninen/bytewax/pkg/recovery"
	"github.com/jhanninen/bytewax/pkg/window"
)

// oneShotPrimaries delivers one pre-computed batch of registry
// assignments, then reports itself exhausted. The registry's
// broadcast-then-collate pass (pkg/registry) runs once, up front, rather
// than as an ongoing stream in this demo.
type oneShotPrimaries struct {
	batch     []input.PrimaryUpdate
	delivered bool
}

func (r *oneShotPrimaries) Poll() ([]input.PrimaryUpdate, dataflow.Epoch, bool) {
	if r.delivered {
		return nil, 0, true
	}
	r.delivered = true
	return r.batch, 0, true
}

// oneShotLoads delivers one pre-computed batch of recovered loads for a
// single worker, then reports exhausted.
type oneShotLoads struct {
	batch     []dataflow.Load
	delivered bool
}

func (r *oneShotLoads) Poll() ([]dataflow.Load, bool) {
	if r.delivered {
		return nil, true
	}
	r.delivered = true
	return r.batch, true
}

// windowSink feeds every emitted item into a shared SlidingWindower,
// using the item's own timestamp as both watermark and event time. This
// demo has no separate watermark tracking, so a window closes as soon as
// a later item has been seen.
type windowSink struct {
	mu       sync.Mutex
	windower *window.SlidingWindower
	log      logging.Logger
}

func (s *windowSink) EmitItems(epoch dataflow.Epoch, key dataflow.StateKey, items []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, raw := range items {
		item, ok := raw.(counterItem)
		if !ok {
			continue
		}
		if item.At.After(latest) {
			latest = item.At
		}
		for _, res := range s.windower.Insert(item.At, item.At) {
			if res.Err != nil {
				s.log.Warn("late item dropped", "partition", string(key), "epoch", uint64(epoch), "err", res.Err)
				continue
			}
			s.log.Info("item assigned to window", "partition", string(key), "epoch", uint64(epoch), "value", item.Value, "window", int64(res.Key))
		}
	}
	if latest.IsZero() {
		return
	}
	for _, closed := range s.windower.DrainClosed(latest) {
		s.log.Info("window closed", "window", int64(closed.Key), "open", closed.Open, "close", closed.Close)
	}
}

// storeSnapSink persists every emitted Snapshot through a recovery.Store,
// encoding opaque partition state with a fixed codec.
type storeSnapSink struct {
	store recovery.Store
	codec recovery.Codec
	log   logging.Logger
}

func (s *storeSnapSink) EmitSnapshot(snap dataflow.Snapshot) {
	rec, err := recovery.FromSnapshot(snap, s.codec)
	if err != nil {
		s.log.Error("encode snapshot failed", "step", string(snap.StepID), "partition", string(snap.Key), "err", err)
		return
	}
	if err := s.store.Write(context.Background(), rec); err != nil {
		s.log.Error("persist snapshot failed", "step", string(snap.StepID), "partition", string(snap.Key), "err", err)
	}
}

// loadsByWorker replays every record a Store holds for step, decodes it,
// and buckets the resulting Loads by the worker that is primary for its
// key, per primaries. This is the routing PartitionedInput's drainLoads
// step requires: a load must only ever be handed to the worker that owns
// its key.
func loadsByWorker(
	ctx context.Context,
	store recovery.Store,
	step dataflow.StepID,
	resumeEpoch dataflow.Epoch,
	codecs recovery.Registry,
	primaries map[dataflow.StateKey]dataflow.WorkerIndex,
) (map[dataflow.WorkerIndex][]dataflow.Load, error) {
	records, err := store.LoadLatest(ctx, step, resumeEpoch)
	if err != nil {
		return nil, err
	}
	out := make(map[dataflow.WorkerIndex][]dataflow.Load)
	for _, rec := range records {
		worker, ok := primaries[rec.Key]
		if !ok {
			continue
		}
		load, err := rec.ToLoad(worker, codecs)
		if err != nil {
			return nil, err
		}
		out[worker] = append(out[worker], load)
	}
	return out, nil
}
