package dto

import "dashext/internal/modules/loader/domain"

// LoadInput names the reference to mount. Ticket, when non-zero, orders
// the request against others from the same caller.
type LoadInput struct {
	Ticket uint64
	Kind   string
	Value  string
}

type ReleaseInput struct {
	Ticket uint64
}

type Descriptor struct {
	Name    string
	Version string
	Title   string
}

// Snapshot is the loader state as of one generation. Superseded is set on
// the result of a load that lost to a newer one; such results carry no
// descriptor and must not be displayed.
type Snapshot struct {
	Generation uint64
	State      domain.State
	Error      string
	Descriptor Descriptor
	Superseded bool
}

type RenderInput struct {
	Width  int
	Height int
}

type Frame struct {
	Content string
}
