package out

import (
	"context"

	"dashext/internal/modules/bridge/domain"
)

// Transport delivers one request and returns its single response.
type Transport interface {
	RoundTrip(ctx context.Context, req domain.Request) (domain.Response, error)
}

// Handler answers requests on the host side. It never returns a Go error;
// failures travel inside the response.
type Handler interface {
	Handle(ctx context.Context, req domain.Request) domain.Response
}

type Server interface {
	Serve(ctx context.Context, socketPath string, handler Handler) error
}
