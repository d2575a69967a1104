package in

import (
	"context"

	"dashext/internal/modules/content/dto"
)

type Usecase interface {
	Resolve(ctx context.Context, input dto.ResolveInput) (dto.ResolveOutput, error)
	StartServer(ctx context.Context) (dto.ServerStatus, error)
	StopServer(ctx context.Context) error
	ServerStatus(ctx context.Context) dto.ServerStatus
}
