package domain

import (
	"encoding/json"
	"fmt"

	apperrors "dashext/internal/platform/errors"
)

// Method names are part of the wire contract between the UI and the host.
type Method string

const (
	MethodSelectFile       Method = "select-file"
	MethodUploadAndExtract Method = "upload-and-extract"
)

func (m Method) Known() bool {
	return m == MethodSelectFile || m == MethodUploadAndExtract
}

type Request struct {
	Method Method          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (r Request) Validate() error {
	if !r.Method.Known() {
		return fmt.Errorf("%w: unknown method %q", apperrors.ErrInvalidInput, r.Method)
	}
	return nil
}

type Failure struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

// Response carries exactly one of Result or Error.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Failure        `json:"error,omitempty"`
}

func (r Response) Validate() error {
	hasResult := len(r.Result) > 0
	hasError := r.Error != nil
	if hasResult == hasError {
		return fmt.Errorf("%w: response must carry exactly one of result or error", apperrors.ErrChannelFailure)
	}
	if hasError && r.Error.Kind == "" {
		return fmt.Errorf("%w: error without kind", apperrors.ErrChannelFailure)
	}
	return nil
}

func Success(result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}
	return Response{Result: raw}, nil
}

func Fail(err error) Response {
	return Response{Error: &Failure{Kind: apperrors.KindOf(err), Message: err.Error()}}
}

// Err turns a failure back into an error that matches the host's sentinel.
func (f Failure) Err() error {
	return apperrors.FromKind(f.Kind, f.Message)
}

// SelectFileResult leaves Path empty when nothing was selected.
type SelectFileResult struct {
	Path string `json:"path,omitempty"`
}

type UploadAndExtractParams struct {
	SourceArchive   string `json:"sourceArchive"`
	DestinationRoot string `json:"destinationRoot"`
}

type UploadAndExtractResult struct {
	TargetPath string `json:"targetPath"`
}
