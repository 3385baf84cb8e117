package input

import (
	"context"
	"sync"
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// fakeClock is a manually advanced dataflow.Clock, standing in for the
// clockz.RealClock that production wiring uses. Kept local here so these
// tests have no third-party dependency on clockz.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

// scriptedPartition replays a fixed sequence of NextBatch outcomes, one
// per call, returning the last one repeatedly once exhausted.
type scriptedPartition struct {
	mu        sync.Mutex
	batches   []dataflow.Batch
	calls     int
	nextAwake *time.Time
	snapState []byte
	closed    bool
	snapCalls int
}

func (p *scriptedPartition) NextBatch(now time.Time, scheduledAwake *time.Time) (dataflow.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.batches) {
		idx = len(p.batches) - 1
	}
	p.calls++
	return p.batches[idx], nil
}

func (p *scriptedPartition) NextAwake() (*time.Time, error) {
	return p.nextAwake, nil
}

func (p *scriptedPartition) Snapshot() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapCalls++
	return p.snapState, nil
}

func (p *scriptedPartition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeSource hands back pre-built scriptedPartitions by key, recording
// resume state passed to BuildPart.
type fakeSource struct {
	parts      map[dataflow.StateKey][]dataflow.Batch
	built      map[dataflow.StateKey]*scriptedPartition
	resumedAt  map[dataflow.StateKey][]byte
	buildCalls int
}

func newFakeSource(parts map[dataflow.StateKey][]dataflow.Batch) *fakeSource {
	return &fakeSource{
		parts:     parts,
		built:     make(map[dataflow.StateKey]*scriptedPartition),
		resumedAt: make(map[dataflow.StateKey][]byte),
	}
}

func (s *fakeSource) ListParts(ctx context.Context) ([]dataflow.StateKey, error) {
	keys := make([]dataflow.StateKey, 0, len(s.parts))
	for k := range s.parts {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *fakeSource) BuildPart(now time.Time, key dataflow.StateKey, resumeState []byte) (StatefulPartition, error) {
	s.buildCalls++
	s.resumedAt[key] = resumeState
	p := &scriptedPartition{batches: s.parts[key]}
	s.built[key] = p
	return p, nil
}

// staticPrimaries delivers one batch of assignments then reports eof.
type staticPrimaries struct {
	batch     []PrimaryUpdate
	frontier  dataflow.Epoch
	delivered bool
}

func (r *staticPrimaries) Poll() ([]PrimaryUpdate, dataflow.Epoch, bool) {
	if r.delivered {
		return nil, r.frontier, true
	}
	r.delivered = true
	return r.batch, r.frontier, true
}

// staticLoads delivers one batch of loads then reports eof.
type staticLoads struct {
	batch     []dataflow.Load
	delivered bool
}

func (r *staticLoads) Poll() ([]dataflow.Load, bool) {
	if r.delivered {
		return nil, true
	}
	r.delivered = true
	return r.batch, true
}

// recordingItems captures every EmitItems call.
type recordingItems struct {
	mu    sync.Mutex
	calls []itemsCall
}

type itemsCall struct {
	Epoch dataflow.Epoch
	Key   dataflow.StateKey
	Items []any
}

func (s *recordingItems) EmitItems(epoch dataflow.Epoch, key dataflow.StateKey, items []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, itemsCall{Epoch: epoch, Key: key, Items: items})
}

// recordingSnaps captures every EmitSnapshot call.
type recordingSnaps struct {
	mu    sync.Mutex
	calls []dataflow.Snapshot
}

func (s *recordingSnaps) EmitSnapshot(snap dataflow.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, snap)
}

// fakeAbort is a non-atomic AbortFlag stand-in; fine since tests are
// single-goroutine.
type fakeAbort struct {
	aborted bool
}

func (f *fakeAbort) Store(v bool) { f.aborted = v }
