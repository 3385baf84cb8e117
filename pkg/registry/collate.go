package registry

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// ListParts is how a worker reports the partitions it can host: the
// user-facing source's list_parts() contract, fetched once per worker
// during the broadcast-then-collate pass.
type ListParts func(ctx context.Context, worker dataflow.WorkerIndex) ([]dataflow.StateKey, error)

// CollateViews gathers every worker's list_parts() view concurrently,
// one goroutine per worker, and returns the assignment computed over the
// union.
//
// If any worker's list_parts() call fails, CollateViews returns that
// error and no assignments; a partial broadcast is not a sound basis for
// a deterministic primary assignment.
func CollateViews(ctx context.Context, workerCount dataflow.WorkerCount, fetch ListParts, log Logger) ([]Assignment, error) {
	views := make(map[dataflow.WorkerIndex][]dataflow.StateKey, workerCount)
	results := make([][]dataflow.StateKey, workerCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < int(workerCount); i++ {
		i := dataflow.WorkerIndex(i)
		g.Go(func() error {
			keys, err := fetch(gctx, i)
			if err != nil {
				return err
			}
			results[i] = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, keys := range results {
		views[dataflow.WorkerIndex(i)] = keys
	}
	return AssignPrimaries(views, workerCount, log), nil
}
