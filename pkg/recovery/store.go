package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// envelope is Record's wire form: the shape msgpack actually encodes.
// Kept distinct from Record so callers never need to think about
// serialization when constructing one.
type envelope struct {
	StepID  string `msgpack:"step_id"`
	Key     string `msgpack:"key"`
	Epoch   uint64 `msgpack:"epoch"`
	Delete  bool   `msgpack:"delete"`
	Codec   string `msgpack:"codec"`
	Payload []byte `msgpack:"payload"`
}

func toEnvelope(r Record) envelope {
	return envelope{
		StepID:  string(r.StepID),
		Key:     string(r.Key),
		Epoch:   uint64(r.Epoch),
		Delete:  r.Delete,
		Codec:   r.Codec,
		Payload: r.Payload,
	}
}

func (e envelope) toRecord() Record {
	return Record{
		StepID:  dataflow.StepID(e.StepID),
		Key:     dataflow.StateKey(e.Key),
		Epoch:   dataflow.Epoch(e.Epoch),
		Delete:  e.Delete,
		Codec:   e.Codec,
		Payload: e.Payload,
	}
}

// FileStore is a Store that appends one msgpack-encoded envelope per
// write to a directory of per-step files, and on load keeps only the
// newest record at or before resumeEpoch for each key. A minimal, real
// Store implementation, good enough for the demo CLI and for tests that
// want a real filesystem round trip instead of an in-memory fake.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recovery: create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) pathFor(step dataflow.StepID) string {
	return filepath.Join(s.dir, string(step)+".log")
}

// Write appends rec's envelope to its step's log file.
func (s *FileStore) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.pathFor(rec.StepID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("recovery: open store file: %w", err)
	}
	defer f.Close()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(toEnvelope(rec)); err != nil {
		return fmt.Errorf("recovery: encode record: %w", err)
	}
	return nil
}

// LoadLatest replays a step's log file and returns, per key, the newest
// record at an epoch <= resumeEpoch.
func (s *FileStore) LoadLatest(ctx context.Context, step dataflow.StepID, resumeEpoch dataflow.Epoch) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.pathFor(step))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: open store file: %w", err)
	}
	defer f.Close()

	latest := make(map[dataflow.StateKey]Record)
	dec := msgpack.NewDecoder(f)
	for {
		var env envelope
		if err := dec.Decode(&env); err != nil {
			break // EOF or trailing garbage: stop, return what decoded cleanly
		}
		rec := env.toRecord()
		if rec.Epoch > resumeEpoch {
			continue
		}
		if existing, ok := latest[rec.Key]; !ok || rec.Epoch > existing.Epoch {
			latest[rec.Key] = rec
		}
	}

	keys := make([]dataflow.StateKey, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, latest[k])
	}
	return out, nil
}
