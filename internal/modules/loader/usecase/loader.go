package usecase

import (
	"context"

	"dashext/internal/modules/loader/domain"
	"dashext/internal/modules/loader/dto"
	loaderin "dashext/internal/modules/loader/port/in"
	"dashext/internal/modules/loader/service"
)

type Interactor struct {
	svc *service.LoaderService
}

func NewInteractor(svc *service.LoaderService) loaderin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Reserve(context.Context) uint64 {
	return i.svc.Reserve()
}

func (i *Interactor) Load(ctx context.Context, input dto.LoadInput) dto.Snapshot {
	return i.svc.LoadTicket(ctx, input.Ticket, domain.Reference{Kind: domain.ReferenceKind(input.Kind), Value: input.Value})
}

func (i *Interactor) Snapshot(context.Context) dto.Snapshot {
	return i.svc.Snapshot()
}

func (i *Interactor) Render(ctx context.Context, input dto.RenderInput) (dto.Frame, error) {
	content, err := i.svc.Render(ctx, input.Width, input.Height)
	if err != nil {
		return dto.Frame{}, err
	}
	return dto.Frame{Content: content}, nil
}

func (i *Interactor) Release(_ context.Context, input dto.ReleaseInput) bool {
	if input.Ticket == 0 {
		i.svc.Release()
		return true
	}
	return i.svc.ReleaseTicket(input.Ticket)
}
