package in

import (
	"context"

	"dashext/internal/modules/loader/dto"
	loaderin "dashext/internal/modules/loader/port/in"
)

type TUIHandler struct {
	usecase loaderin.Usecase
}

func NewTUIHandler(usecase loaderin.Usecase) TUIHandler {
	return TUIHandler{usecase: usecase}
}

func (h TUIHandler) Reserve(ctx context.Context) uint64 {
	return h.usecase.Reserve(ctx)
}

func (h TUIHandler) Load(ctx context.Context, kind, value string) dto.Snapshot {
	return h.usecase.Load(ctx, dto.LoadInput{Kind: kind, Value: value})
}

// LoadTicket loads in the order of reserved tickets.
func (h TUIHandler) LoadTicket(ctx context.Context, ticket uint64, kind, value string) dto.Snapshot {
	return h.usecase.Load(ctx, dto.LoadInput{Ticket: ticket, Kind: kind, Value: value})
}

func (h TUIHandler) Snapshot(ctx context.Context) dto.Snapshot {
	return h.usecase.Snapshot(ctx)
}

func (h TUIHandler) Render(ctx context.Context, width, height int) (dto.Frame, error) {
	return h.usecase.Render(ctx, dto.RenderInput{Width: width, Height: height})
}

// Release unmounts unconditionally and invalidates outstanding tickets.
func (h TUIHandler) Release(ctx context.Context) {
	h.usecase.Release(ctx, dto.ReleaseInput{})
}

func (h TUIHandler) ReleaseTicket(ctx context.Context, ticket uint64) bool {
	return h.usecase.Release(ctx, dto.ReleaseInput{Ticket: ticket})
}
