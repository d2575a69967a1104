package in

import (
	"context"

	"dashext/internal/modules/content/dto"
	contentin "dashext/internal/modules/content/port/in"
)

type CLIHandler struct {
	usecase contentin.Usecase
}

func NewCLIHandler(usecase contentin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Resolve(ctx context.Context, targetPath, entry string) (dto.ResolveOutput, error) {
	return h.usecase.Resolve(ctx, dto.ResolveInput{TargetPath: targetPath, Entry: entry})
}

func (h CLIHandler) StartServer(ctx context.Context) (dto.ServerStatus, error) {
	return h.usecase.StartServer(ctx)
}

func (h CLIHandler) StopServer(ctx context.Context) error {
	return h.usecase.StopServer(ctx)
}

func (h CLIHandler) ServerStatus(ctx context.Context) dto.ServerStatus {
	return h.usecase.ServerStatus(ctx)
}
