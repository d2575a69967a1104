package out

import (
	"context"

	"dashext/internal/modules/extension/domain"
)

// Picker asks the operator for one archive. ok is false on cancel.
type Picker interface {
	Pick(ctx context.Context) (path string, ok bool, err error)
}

type Extractor interface {
	Extract(ctx context.Context, plan domain.Plan) (domain.Stats, error)
}

type Registry interface {
	Record(ctx context.Context, item domain.Installed) error
	List(ctx context.Context) ([]domain.Installed, error)
	Delete(ctx context.Context, name string) error
}
