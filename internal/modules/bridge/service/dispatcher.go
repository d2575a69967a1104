package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"dashext/internal/modules/bridge/domain"
	bridgeout "dashext/internal/modules/bridge/port/out"
	extensiondto "dashext/internal/modules/extension/dto"
	extensionin "dashext/internal/modules/extension/port/in"
	apperrors "dashext/internal/platform/errors"
)

// Dispatcher is the host side of the command channel. It routes the two
// known methods to the extension usecase and treats everything the UI sends
// as untrusted.
type Dispatcher struct {
	extensions extensionin.Usecase
	log        hclog.Logger
}

var _ bridgeout.Handler = (*Dispatcher)(nil)

func NewDispatcher(extensions extensionin.Usecase, logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{extensions: extensions, log: logger.Named("dispatch")}
}

func (d *Dispatcher) Handle(ctx context.Context, req domain.Request) (resp domain.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic", "method", req.Method, "panic", r)
			resp = domain.Response{Error: &domain.Failure{Kind: apperrors.KindInternal, Message: fmt.Sprintf("internal error handling %s", req.Method)}}
		}
	}()
	if err := req.Validate(); err != nil {
		d.log.Warn("rejected request", "method", req.Method, "error", err)
		return domain.Fail(err)
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case domain.MethodSelectFile:
		result, err = d.selectFile(ctx)
	case domain.MethodUploadAndExtract:
		result, err = d.uploadAndExtract(ctx, req.Params)
	}
	if err != nil {
		d.log.Info("request failed", "method", req.Method, "kind", apperrors.KindOf(err), "error", err)
		return domain.Fail(err)
	}
	resp, err = domain.Success(result)
	if err != nil {
		return domain.Fail(err)
	}
	return resp
}

func (d *Dispatcher) selectFile(ctx context.Context) (domain.SelectFileResult, error) {
	out, err := d.extensions.SelectArchive(ctx)
	if err != nil {
		return domain.SelectFileResult{}, err
	}
	if !out.Selected {
		return domain.SelectFileResult{}, nil
	}
	return domain.SelectFileResult{Path: out.Path}, nil
}

func (d *Dispatcher) uploadAndExtract(ctx context.Context, raw json.RawMessage) (domain.UploadAndExtractResult, error) {
	if len(raw) == 0 {
		return domain.UploadAndExtractResult{}, fmt.Errorf("%w: upload-and-extract requires params", apperrors.ErrInvalidInput)
	}
	var params domain.UploadAndExtractParams
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&params); err != nil {
		return domain.UploadAndExtractResult{}, fmt.Errorf("%w: decode upload-and-extract params: %v", apperrors.ErrInvalidInput, err)
	}
	out, err := d.extensions.Extract(ctx, extensiondto.ExtractInput{
		SourceArchive:   params.SourceArchive,
		DestinationRoot: params.DestinationRoot,
	})
	if err != nil {
		return domain.UploadAndExtractResult{}, err
	}
	return domain.UploadAndExtractResult{TargetPath: out.TargetPath}, nil
}
