package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"dashext/internal/modules/bridge/domain"
	"dashext/internal/modules/bridge/dto"
	bridgeout "dashext/internal/modules/bridge/port/out"
	apperrors "dashext/internal/platform/errors"
)

// ClientService is the UI side of the command channel.
type ClientService struct {
	transport bridgeout.Transport
	log       hclog.Logger
}

func NewClientService(transport bridgeout.Transport, logger hclog.Logger) *ClientService {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ClientService{transport: transport, log: logger.Named("bridge")}
}

func (s *ClientService) SelectFile(ctx context.Context) (dto.SelectFileOutput, error) {
	var result domain.SelectFileResult
	if err := s.call(ctx, domain.MethodSelectFile, nil, &result); err != nil {
		return dto.SelectFileOutput{}, err
	}
	return dto.SelectFileOutput{Path: result.Path, Selected: result.Path != ""}, nil
}

func (s *ClientService) UploadAndExtract(ctx context.Context, input dto.UploadInput) (dto.UploadOutput, error) {
	params := domain.UploadAndExtractParams{SourceArchive: input.SourceArchive, DestinationRoot: input.DestinationRoot}
	var result domain.UploadAndExtractResult
	if err := s.call(ctx, domain.MethodUploadAndExtract, params, &result); err != nil {
		return dto.UploadOutput{}, err
	}
	if result.TargetPath == "" {
		return dto.UploadOutput{}, fmt.Errorf("%w: upload-and-extract returned no target path", apperrors.ErrChannelFailure)
	}
	return dto.UploadOutput{TargetPath: result.TargetPath}, nil
}

func (s *ClientService) call(ctx context.Context, method domain.Method, params any, result any) error {
	req := domain.Request{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%w: encode %s params: %v", apperrors.ErrInvalidInput, method, err)
		}
		req.Params = raw
	}
	resp, err := s.transport.RoundTrip(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrChannelFailure) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrChannelFailure, method, ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", apperrors.ErrChannelFailure, method, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		s.log.Debug("host rejected request", "method", method, "kind", resp.Error.Kind)
		return resp.Error.Err()
	}
	decoder := json.NewDecoder(bytes.NewReader(resp.Result))
	if err := decoder.Decode(result); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", apperrors.ErrChannelFailure, method, err)
	}
	return nil
}
