package memory

import (
	"context"
	"errors"
	"testing"

	"gmvbridge/internal/core"
)

func TestReadSnapshotReturnsCopies(t *testing.T) {
	s := New(core.Snapshot{Orders: []core.Order{{OrderID: "o1"}}})
	got, err := s.ReadSnapshot(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got.Orders[0].OrderID = "changed"

	again, _ := s.ReadSnapshot(context.Background())
	if again.Orders[0].OrderID != "o1" {
		t.Fatalf("stored snapshot was mutated through a read")
	}
}

func TestReadSnapshotFailure(t *testing.T) {
	s := New(core.Snapshot{})
	boom := errors.New("boom")
	s.Fail(boom)
	if _, err := s.ReadSnapshot(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	s.Fail(nil)
	if _, err := s.ReadSnapshot(context.Background()); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ReadSnapshot(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
