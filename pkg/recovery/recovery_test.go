package recovery

import (
	"context"
	"testing"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

func TestCodecsRoundTrip(t *testing.T) {
	codecs := []Codec{NoopCodec{}, ZstdCodec{}, SnappyCodec{}, LZ4Codec{}}
	original := []byte("a reasonably compressible opaque partition state payload payload payload")

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			encoded, err := Encode(codec, original)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(codec, encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(decoded) != string(original) {
				t.Fatalf("round trip mismatch: got %q, want %q", decoded, original)
			}
		})
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	encoded, err := Encode(ZstdCodec{}, []byte("state"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	corrupted := append([]byte{}, encoded...)
	corrupted[0] ^= 0xFF

	if _, err := Decode(ZstdCodec{}, corrupted); err == nil {
		t.Fatalf("expected checksum mismatch on corrupted payload")
	}
}

func TestDecodeDetectsTruncation(t *testing.T) {
	if _, err := Decode(NoopCodec{}, []byte("short")); err == nil {
		t.Fatalf("expected error decoding a payload too short to hold a checksum")
	}
}

func TestFromSnapshotAndToLoadRoundTrip(t *testing.T) {
	reg := NewRegistry(NoopCodec{}, ZstdCodec{})
	snap := dataflow.Snapshot{
		StepID: "step",
		Key:    "p1",
		Epoch:  7,
		Change: dataflow.Upsert([]byte("resume-me")),
	}

	rec, err := FromSnapshot(snap, ZstdCodec{})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if rec.Codec != "zstd" {
		t.Fatalf("expected codec name zstd, got %q", rec.Codec)
	}

	load, err := rec.ToLoad(2, reg)
	if err != nil {
		t.Fatalf("ToLoad: %v", err)
	}
	if load.Worker != 2 || load.Key != "p1" || load.Epoch != 7 {
		t.Fatalf("unexpected load: %+v", load)
	}
	if string(load.Change.State) != "resume-me" {
		t.Fatalf("expected decoded state 'resume-me', got %q", load.Change.State)
	}
}

func TestFromSnapshotTombstoneRoundTrip(t *testing.T) {
	reg := NewRegistry(NoopCodec{})
	snap := dataflow.Snapshot{StepID: "step", Key: "p1", Epoch: 1, Change: dataflow.Tombstone()}

	rec, err := FromSnapshot(snap, NoopCodec{})
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	load, err := rec.ToLoad(0, reg)
	if err != nil {
		t.Fatalf("ToLoad: %v", err)
	}
	if !load.Change.Delete {
		t.Fatalf("expected tombstone load, got %+v", load)
	}
}

func TestFileStoreWriteAndLoadLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	writes := []dataflow.Snapshot{
		{StepID: "step", Key: "p1", Epoch: 0, Change: dataflow.Upsert([]byte("v0"))},
		{StepID: "step", Key: "p1", Epoch: 1, Change: dataflow.Upsert([]byte("v1"))},
		{StepID: "step", Key: "p2", Epoch: 0, Change: dataflow.Upsert([]byte("v0-p2"))},
	}
	for _, snap := range writes {
		rec, err := FromSnapshot(snap, NoopCodec{})
		if err != nil {
			t.Fatalf("FromSnapshot: %v", err)
		}
		if err := store.Write(ctx, rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	recs, err := store.LoadLatest(ctx, "step", 5)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 partitions (p1, p2), got %d: %+v", len(recs), recs)
	}

	byKey := make(map[dataflow.StateKey]Record, len(recs))
	for _, r := range recs {
		byKey[r.Key] = r
	}
	p1State, err := Decode(NoopCodec{}, byKey["p1"].Payload)
	if err != nil {
		t.Fatalf("Decode p1 payload: %v", err)
	}
	if byKey["p1"].Epoch != 1 || string(p1State) != "v1" {
		t.Fatalf("expected p1's newest record (epoch 1, v1), got %+v", byKey["p1"])
	}
	if byKey["p2"].Epoch != 0 {
		t.Fatalf("expected p2's only record (epoch 0), got %+v", byKey["p2"])
	}
}

func TestFileStoreLoadLatestRespectsResumeEpoch(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for epoch := dataflow.Epoch(0); epoch < 3; epoch++ {
		rec, err := FromSnapshot(dataflow.Snapshot{
			StepID: "step", Key: "p1", Epoch: epoch, Change: dataflow.Upsert([]byte{byte(epoch)}),
		}, NoopCodec{})
		if err != nil {
			t.Fatalf("FromSnapshot: %v", err)
		}
		if err := store.Write(ctx, rec); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	recs, err := store.LoadLatest(ctx, "step", 1)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(recs) != 1 || recs[0].Epoch != 1 {
		t.Fatalf("expected only the epoch-1 record to be visible at resumeEpoch=1, got %+v", recs)
	}
}
