package memory

import (
	"context"
	"sync"

	"gmvbridge/internal/core"
)

// Store is an in-process snapshot source. Reads return copies, so callers may
// not mutate the stored data.
type Store struct {
	mu   sync.RWMutex
	snap core.Snapshot
	err  error
}

func New(s core.Snapshot) *Store {
	return &Store{snap: s}
}

// Replace swaps the stored snapshot.
func (s *Store) Replace(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

// Fail makes subsequent reads return err. A nil err clears it.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) ReadSnapshot(ctx context.Context) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return core.Snapshot{}, s.err
	}
	return core.Snapshot{
		Orders:    append([]core.Order(nil), s.snap.Orders...),
		Items:     append([]core.OrderItem(nil), s.snap.Items...),
		Products:  append([]core.Product(nil), s.snap.Products...),
		Payments:  append([]core.Payment(nil), s.snap.Payments...),
		Reviews:   append([]core.Review(nil), s.snap.Reviews...),
		Customers: append([]core.Customer(nil), s.snap.Customers...),
	}, nil
}
