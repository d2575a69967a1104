package in

import (
	"context"

	"dashext/internal/modules/loader/dto"
)

type Usecase interface {
	// Reserve hands out a ticket for an ordered Load or Release.
	Reserve(ctx context.Context) uint64
	// Load blocks until the attempt settles or is superseded. Failures are
	// reported in the snapshot, never as a returned error.
	Load(ctx context.Context, input dto.LoadInput) dto.Snapshot
	Snapshot(ctx context.Context) dto.Snapshot
	Render(ctx context.Context, input dto.RenderInput) (dto.Frame, error)
	// Release reports false when the ticket was stale and nothing changed.
	Release(ctx context.Context, input dto.ReleaseInput) bool
}
