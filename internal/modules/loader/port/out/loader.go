package out

import (
	"context"

	"dashext/internal/modules/loader/domain"
)

type Fetcher interface {
	Fetch(ctx context.Context, ref domain.Reference) (domain.Module, error)
}

type Mounter interface {
	Mount(ctx context.Context, module domain.Module) (Handle, error)
}

// Handle is a live mounted component. Release must be safe to call once
// the component has already exited.
type Handle interface {
	Descriptor() domain.Descriptor
	Render(ctx context.Context, width, height int) (string, error)
	Release()
}
