package out

import (
	"context"
	"fmt"

	"dashext/internal/modules/loader/domain"
	loaderout "dashext/internal/modules/loader/port/out"
	apperrors "dashext/internal/platform/errors"
)

type RoutingFetcher struct {
	local  loaderout.Fetcher
	served loaderout.Fetcher
}

func NewRoutingFetcher(local, served loaderout.Fetcher) loaderout.Fetcher {
	return &RoutingFetcher{local: local, served: served}
}

func (r *RoutingFetcher) Fetch(ctx context.Context, ref domain.Reference) (domain.Module, error) {
	var next loaderout.Fetcher
	switch ref.Kind {
	case domain.RefLocalPath:
		next = r.local
	case domain.RefServedURL:
		next = r.served
	}
	if next == nil {
		return domain.Module{}, fmt.Errorf("%w: no fetcher for %s references", apperrors.ErrLoadFailure, ref.Kind)
	}
	return next.Fetch(ctx, ref)
}
