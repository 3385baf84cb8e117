package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
	"github.com/jhanninen/bytewax/pkg/input"
)

// counterSource is a toy StatefulSource: each partition counts up from its
// resumed (or zero) value, emitting one item per activation. It exists
// only to exercise the operator end to end; real sources are supplied by
// applications.
type counterSource struct {
	partitionKeys []dataflow.StateKey
	maxItems      int64
}

func newCounterSource(numPartitions int, maxItems int64) *counterSource {
	keys := make([]dataflow.StateKey, numPartitions)
	for i := range keys {
		keys[i] = dataflow.StateKey(fmt.Sprintf("part-%d", i))
	}
	return &counterSource{partitionKeys: keys, maxItems: maxItems}
}

func (s *counterSource) ListParts(ctx context.Context) ([]dataflow.StateKey, error) {
	return s.partitionKeys, nil
}

func (s *counterSource) BuildPart(now time.Time, key dataflow.StateKey, resumeState []byte) (input.StatefulPartition, error) {
	start := int64(0)
	if len(resumeState) > 0 {
		parsed, err := strconv.ParseInt(string(resumeState), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counterSource: parse resume state for %s: %w", key, err)
		}
		start = parsed
	}
	return &counterPartition{key: key, n: start, maxItems: s.maxItems}, nil
}

// counterPartition emits its own current count as a single item, then
// increments. It stops after maxItems, returning Eof.
type counterPartition struct {
	key      dataflow.StateKey
	n        int64
	maxItems int64
}

func (p *counterPartition) NextBatch(now time.Time, scheduledAwake *time.Time) (dataflow.Batch, error) {
	if p.maxItems > 0 && p.n >= p.maxItems {
		return dataflow.EOF(), nil
	}
	item := counterItem{Key: p.key, Value: p.n, At: now}
	p.n++
	return dataflow.Items(item), nil
}

func (p *counterPartition) NextAwake() (*time.Time, error) {
	return nil, nil
}

func (p *counterPartition) Snapshot() ([]byte, error) {
	return []byte(strconv.FormatInt(p.n, 10)), nil
}

func (p *counterPartition) Close() error { return nil }

// counterItem is the opaque item type this demo's partitions emit.
type counterItem struct {
	Key   dataflow.StateKey
	Value int64
	At    time.Time
}
