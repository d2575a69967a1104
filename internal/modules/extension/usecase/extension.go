package usecase

import (
	"context"

	"dashext/internal/modules/extension/dto"
	extensionin "dashext/internal/modules/extension/port/in"
	"dashext/internal/modules/extension/service"
)

type Interactor struct {
	svc *service.ExtensionService
}

func NewInteractor(svc *service.ExtensionService) extensionin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) SelectArchive(ctx context.Context) (dto.SelectOutput, error) {
	return i.svc.SelectArchive(ctx)
}

func (i *Interactor) Extract(ctx context.Context, input dto.ExtractInput) (dto.ExtractOutput, error) {
	return i.svc.Extract(ctx, input)
}

func (i *Interactor) List(ctx context.Context) ([]dto.InstalledInfo, error) {
	return i.svc.List(ctx)
}

func (i *Interactor) Remove(ctx context.Context, name string) error {
	return i.svc.Remove(ctx, name)
}
