package usecase

import (
	"context"

	"dashext/internal/modules/bridge/dto"
	bridgein "dashext/internal/modules/bridge/port/in"
	"dashext/internal/modules/bridge/service"
)

type Interactor struct {
	svc *service.ClientService
}

func NewInteractor(svc *service.ClientService) bridgein.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) SelectFile(ctx context.Context) (dto.SelectFileOutput, error) {
	return i.svc.SelectFile(ctx)
}

func (i *Interactor) UploadAndExtract(ctx context.Context, input dto.UploadInput) (dto.UploadOutput, error) {
	return i.svc.UploadAndExtract(ctx, input)
}
