package in

import (
	"context"

	"dashext/internal/modules/extension/dto"
)

type Usecase interface {
	SelectArchive(ctx context.Context) (dto.SelectOutput, error)
	Extract(ctx context.Context, input dto.ExtractInput) (dto.ExtractOutput, error)
	List(ctx context.Context) ([]dto.InstalledInfo, error)
	Remove(ctx context.Context, name string) error
}
