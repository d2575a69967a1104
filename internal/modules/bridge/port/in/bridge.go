package in

import (
	"context"

	"dashext/internal/modules/bridge/dto"
)

// Usecase is the UI's view of the host: the only two things it may ask for.
type Usecase interface {
	SelectFile(ctx context.Context) (dto.SelectFileOutput, error)
	UploadAndExtract(ctx context.Context, input dto.UploadInput) (dto.UploadOutput, error)
}
