package in

import (
	"context"

	"dashext/internal/modules/extension/dto"
	extensionin "dashext/internal/modules/extension/port/in"
)

type CLIHandler struct {
	usecase extensionin.Usecase
}

func NewCLIHandler(usecase extensionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Extract(ctx context.Context, sourceArchive, destinationRoot string) (dto.ExtractOutput, error) {
	return h.usecase.Extract(ctx, dto.ExtractInput{SourceArchive: sourceArchive, DestinationRoot: destinationRoot})
}

func (h CLIHandler) List(ctx context.Context) ([]dto.InstalledInfo, error) {
	return h.usecase.List(ctx)
}

func (h CLIHandler) Remove(ctx context.Context, name string) error {
	return h.usecase.Remove(ctx, name)
}
