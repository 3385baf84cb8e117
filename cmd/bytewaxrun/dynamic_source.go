package main

import (
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/input"
)

// tickSource is a toy StatelessSource (C4): every worker gets its own
// partition that emits one tickItem per activation, forever, splitting
// the count round-robin by worker index so running with N workers
// produces a disjoint interleave rather than N copies of the same stream.
type tickSource struct{}

func (tickSource) Build(now time.Time, worker dataflow.WorkerIndex, workerCount dataflow.WorkerCount) (input.StatelessPartition, error) {
	return &tickPartition{worker: worker, workerCount: workerCount}, nil
}

type tickPartition struct {
	worker      dataflow.WorkerIndex
	workerCount dataflow.WorkerCount
	n           int64
}

func (p *tickPartition) NextBatch(now time.Time, scheduledAwake *time.Time) (dataflow.Batch, error) {
	item := tickItem{Worker: p.worker, Seq: p.n*int64(p.workerCount) + int64(p.worker), At: now}
	p.n++
	return dataflow.Items(item), nil
}

func (p *tickPartition) NextAwake() (*time.Time, error) {
	t := time.Now().Add(200 * time.Millisecond)
	return &t, nil
}

func (p *tickPartition) Close() error { return nil }

// tickItem is the opaque item type tickPartition emits.
type tickItem struct {
	Worker dataflow.WorkerIndex
	Seq    int64
	At     time.Time
}
