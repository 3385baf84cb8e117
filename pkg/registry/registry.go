// Package registry implements the partition registry: a stateless,
// ephemeral broadcast-then-collate pass that assigns each fixed
// partition key to exactly one primary worker, as a pure function of
// (key, worker-set) so every worker computes the same assignment without
// further coordination.
package registry

import (
	"sort"

	"github.com/twmb/murmur3"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// Assignment is one (partition_key, primary_worker) update, emitted at the
// initial epoch.
type Assignment struct {
	Key     dataflow.StateKey
	Primary dataflow.WorkerIndex
}

// Warning is a dropped-key notice: a key reported by no worker. This is
// not an error; the key is simply excluded from the resulting assignment.
type Warning struct {
	Key    dataflow.StateKey
	Reason string
}

// Logger receives warnings produced during assignment. Kept minimal and
// local to this package, rather than importing internal/logging, so
// registry stays a leaf dependency with no logging-framework coupling.
type Logger interface {
	Warn(msg string, kv ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// AssignPrimaries collects the union of keys reported across all workers'
// list_parts() views and deterministically assigns each to one primary:
//
//   - candidates for a key are the workers that reported it, sorted;
//   - the preferred primary is workers_sorted[hash(key) mod worker_count],
//     where workers_sorted ranges over *all* workers 0..worker_count-1;
//   - if the preferred worker did not report the key, fall back to the
//     lowest-indexed worker that did.
//
// views maps each worker to the set of partition keys it can host. The
// result is sorted by key, so replaying it produces the same broadcast
// order on every worker.
func AssignPrimaries(views map[dataflow.WorkerIndex][]dataflow.StateKey, workerCount dataflow.WorkerCount, log Logger) []Assignment {
	if log == nil {
		log = nopLogger{}
	}

	reporters := make(map[dataflow.StateKey][]dataflow.WorkerIndex)
	for worker, keys := range views {
		for _, key := range keys {
			reporters[key] = append(reporters[key], worker)
		}
	}

	keys := make([]dataflow.StateKey, 0, len(reporters))
	for key := range reporters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	assignments := make([]Assignment, 0, len(keys))
	for _, key := range keys {
		workers := reporters[key]
		if len(workers) == 0 {
			log.Warn("partition reported by no worker, dropping", "key", key)
			continue
		}
		sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })

		primary := pickPrimary(key, workers, workerCount)
		assignments = append(assignments, Assignment{Key: key, Primary: primary})
	}
	return assignments
}

// pickPrimary implements the hash-then-fallback rule described above.
func pickPrimary(key dataflow.StateKey, reporters []dataflow.WorkerIndex, workerCount dataflow.WorkerCount) dataflow.WorkerIndex {
	target := dataflow.WorkerIndex(hashKey(key) % uint64(workerCount))
	for _, w := range reporters {
		if w == target {
			return target
		}
	}
	return reporters[0]
}

// hashKey hashes a partition key with murmur3, a fast non-cryptographic
// hash well suited to partition-to-worker mapping.
func hashKey(key dataflow.StateKey) uint64 {
	return murmur3.Sum64([]byte(key.String()))
}
