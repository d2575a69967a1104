package in

import (
	"context"

	"dashext/internal/modules/bridge/dto"
	bridgein "dashext/internal/modules/bridge/port/in"
)

// TUIHandler is what the restricted UI holds instead of any host service.
type TUIHandler struct {
	usecase bridgein.Usecase
}

func NewTUIHandler(usecase bridgein.Usecase) TUIHandler {
	return TUIHandler{usecase: usecase}
}

func (h TUIHandler) SelectFile(ctx context.Context) (dto.SelectFileOutput, error) {
	return h.usecase.SelectFile(ctx)
}

func (h TUIHandler) UploadAndExtract(ctx context.Context, sourceArchive, destinationRoot string) (dto.UploadOutput, error) {
	return h.usecase.UploadAndExtract(ctx, dto.UploadInput{SourceArchive: sourceArchive, DestinationRoot: destinationRoot})
}
