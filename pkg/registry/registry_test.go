package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

type capturingLogger struct {
	warnings []string
}

func (c *capturingLogger) Warn(msg string, kv ...any) {
	c.warnings = append(c.warnings, msg)
}

func TestAssignPrimariesDeterministic(t *testing.T) {
	views := map[dataflow.WorkerIndex][]dataflow.StateKey{
		0: {"a", "b", "c"},
		1: {"a", "b"},
		2: {"a"},
	}

	first := AssignPrimaries(views, 3, nil)
	second := AssignPrimaries(views, 3, nil)

	if len(first) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("assignment not deterministic: %v != %v", first[i], second[i])
		}
	}
	// Sorted by key.
	if first[0].Key != "a" || first[1].Key != "b" || first[2].Key != "c" {
		t.Fatalf("assignments not sorted by key: %v", first)
	}
}

func TestAssignPrimariesFallsBackWhenTargetDidNotReport(t *testing.T) {
	// "c" is only reported by worker 2. Whatever hash(c) mod 3 lands on,
	// if it isn't 2, the primary must still end up being 2.
	views := map[dataflow.WorkerIndex][]dataflow.StateKey{
		2: {"c"},
	}

	got := AssignPrimaries(views, 3, nil)
	if len(got) != 1 || got[0].Primary != 2 {
		t.Fatalf("expected sole reporter 2 to be primary, got %v", got)
	}
}

func TestAssignPrimariesEmptyViewsYieldNoAssignmentsOrWarnings(t *testing.T) {
	// An empty reporter list can't occur via the map structure (there's
	// no way to report a key with no workers), so instead verify that
	// empty views produce no assignments and no warnings.
	log := &capturingLogger{}
	views := map[dataflow.WorkerIndex][]dataflow.StateKey{}
	got := AssignPrimaries(views, 2, log)
	if len(got) != 0 {
		t.Fatalf("expected no assignments for empty views, got %v", got)
	}
	if len(log.warnings) != 0 {
		t.Fatalf("expected no warnings when nothing was reported, got %v", log.warnings)
	}
}

func TestCollateViewsPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	_, err := CollateViews(context.Background(), 2, func(ctx context.Context, w dataflow.WorkerIndex) ([]dataflow.StateKey, error) {
		if w == 1 {
			return nil, boom
		}
		return []dataflow.StateKey{"x"}, nil
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestCollateViewsAssignsAcrossWorkers(t *testing.T) {
	got, err := CollateViews(context.Background(), 2, func(ctx context.Context, w dataflow.WorkerIndex) ([]dataflow.StateKey, error) {
		return []dataflow.StateKey{"only"}, nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Key != "only" {
		t.Fatalf("expected one assignment for key 'only', got %v", got)
	}
}
