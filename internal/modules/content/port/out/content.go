package out

import "context"

// StaticServer exposes a directory read-only over loopback HTTP.
type StaticServer interface {
	// Start is idempotent: while running it returns the bound address.
	Start(ctx context.Context, addr, root string) (string, error)
	Stop(ctx context.Context) error
	Addr() string
}
