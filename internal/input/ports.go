// Package input defines where a run reads its cleaned snapshot from.
package input

import (
	"context"

	"gmvbridge/internal/core"
)

// SnapshotReader supplies one immutable snapshot of the cleaned inputs.
// Implementations return an error wrapping core.ErrInputUnavailable when the
// source cannot be read; the run then aborts as a whole.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context) (core.Snapshot, error)
}
