// Package cache keeps recently read input snapshots in memory so a burst of
// recompute requests parses the input once.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"gmvbridge/internal/core"
	"gmvbridge/internal/input"
	applog "gmvbridge/internal/log"
)

var _ input.SnapshotReader = (*SnapshotReader)(nil)

// SnapshotReader memoizes another reader for a TTL. Concurrent misses share
// one underlying read. Cached snapshots are shared between callers and must
// be treated as read-only, which the pipeline already does.
type SnapshotReader struct {
	next    input.SnapshotReader
	key     string
	entries *LRUCache[core.Snapshot]
	group   singleflight.Group
	logger  *applog.Logger
}

// NewSnapshotReader wraps next. key names the source in logs and in the cache.
func NewSnapshotReader(next input.SnapshotReader, key string, ttl time.Duration, logger *applog.Logger) *SnapshotReader {
	if logger == nil {
		logger = applog.Discard()
	}
	return &SnapshotReader{
		next:    next,
		key:     key,
		entries: NewLRUCache[core.Snapshot](1, ttl),
		logger:  logger.WithComponent(applog.ComponentInput),
	}
}

func (r *SnapshotReader) ReadSnapshot(ctx context.Context) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	if snap, ok := r.entries.Get(r.key); ok {
		r.logger.DebugContext(ctx, "Snapshot cache hit", "source", r.key)
		return snap, nil
	}

	v, err, shared := r.group.Do(r.key, func() (interface{}, error) {
		snap, err := r.next.ReadSnapshot(ctx)
		if err != nil {
			return core.Snapshot{}, err
		}
		r.entries.Set(r.key, snap)
		return snap, nil
	})
	if err != nil {
		return core.Snapshot{}, err
	}
	r.logger.DebugContext(ctx, "Snapshot cache miss", "source", r.key, "shared", shared)
	return v.(core.Snapshot), nil
}

// Invalidate forces the next read to reach the wrapped reader.
func (r *SnapshotReader) Invalidate() {
	r.entries.Delete(r.key)
}
