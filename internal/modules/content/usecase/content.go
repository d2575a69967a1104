package usecase

import (
	"context"

	"dashext/internal/modules/content/dto"
	contentin "dashext/internal/modules/content/port/in"
	"dashext/internal/modules/content/service"
)

type Interactor struct {
	svc *service.ContentService
}

func NewInteractor(svc *service.ContentService) contentin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Resolve(ctx context.Context, input dto.ResolveInput) (dto.ResolveOutput, error) {
	return i.svc.Resolve(ctx, input)
}

func (i *Interactor) StartServer(ctx context.Context) (dto.ServerStatus, error) {
	return i.svc.StartServer(ctx)
}

func (i *Interactor) StopServer(ctx context.Context) error {
	return i.svc.StopServer(ctx)
}

func (i *Interactor) ServerStatus(ctx context.Context) dto.ServerStatus {
	return i.svc.ServerStatus(ctx)
}
