package runtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWorkerGroupWaitsForAllWorkers(t *testing.T) {
	g := New(context.Background())
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		g.Go(func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("expected all 3 workers to have run, got %d", len(done))
	}
}

func TestWorkerGroupCancelsSiblingsOnError(t *testing.T) {
	g := New(context.Background())
	boom := errors.New("boom")

	g.Go(func(ctx context.Context) error {
		return boom
	})
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom to be the retained error, got %v", err)
	}
}

func TestWorkerGroupStopCancelsContext(t *testing.T) {
	g := New(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Stop()

	select {
	case <-g.Context().Done():
	case <-time.After(time.Second):
		t.Fatalf("expected context to be cancelled after Stop")
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
