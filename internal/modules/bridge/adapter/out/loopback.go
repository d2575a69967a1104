package out

import (
	"context"
	"encoding/json"
	"fmt"

	"dashext/internal/modules/bridge/domain"
	bridgeout "dashext/internal/modules/bridge/port/out"
	apperrors "dashext/internal/platform/errors"
)

// Loopback hands requests to an in-process handler. Both envelopes are
// pushed through JSON so the wire shape is exercised.
type Loopback struct {
	handler bridgeout.Handler
}

func NewLoopback(handler bridgeout.Handler) bridgeout.Transport {
	return &Loopback{handler: handler}
}

func (l *Loopback) RoundTrip(ctx context.Context, req domain.Request) (domain.Response, error) {
	var wireReq domain.Request
	if err := reencode(req, &wireReq); err != nil {
		return domain.Response{}, err
	}
	resp := l.handler.Handle(ctx, wireReq)
	var wireResp domain.Response
	if err := reencode(resp, &wireResp); err != nil {
		return domain.Response{}, err
	}
	return wireResp, nil
}

func reencode(in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", apperrors.ErrChannelFailure, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", apperrors.ErrChannelFailure, err)
	}
	return nil
}
