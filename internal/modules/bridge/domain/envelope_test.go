package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	apperrors "dashext/internal/platform/errors"
)

func TestRequestValidate(t *testing.T) {
	t.Parallel()
	for _, method := range []Method{MethodSelectFile, MethodUploadAndExtract} {
		if err := (Request{Method: method}).Validate(); err != nil {
			t.Fatalf("%s: unexpected error %v", method, err)
		}
	}
	if err := (Request{Method: "delete-everything"}).Validate(); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestResponseValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		resp Response
		ok   bool
	}{
		{name: "result", resp: Response{Result: json.RawMessage(`{}`)}, ok: true},
		{name: "error", resp: Response{Error: &Failure{Kind: apperrors.KindBusy, Message: "busy"}}, ok: true},
		{name: "neither", resp: Response{}},
		{name: "both", resp: Response{Result: json.RawMessage(`{}`), Error: &Failure{Kind: apperrors.KindBusy}}},
		{name: "kindless error", resp: Response{Error: &Failure{Message: "x"}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.resp.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, apperrors.ErrChannelFailure) {
				t.Fatalf("expected channel failure, got %v", err)
			}
		})
	}
}

func TestFailRoundTrip(t *testing.T) {
	t.Parallel()
	resp := Fail(fmt.Errorf("%w: entry %q has a parent segment", apperrors.ErrTraversalRejected, "../x"))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Kind != apperrors.KindTraversalRejected {
		t.Fatalf("unexpected failure: %+v", decoded.Error)
	}
	if !errors.Is(decoded.Error.Err(), apperrors.ErrTraversalRejected) {
		t.Fatalf("rebuilt error lost its sentinel: %v", decoded.Error.Err())
	}
}

func TestSelectFileResultOmitsEmptyPath(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(SelectFileResult{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{}` {
		t.Fatalf("expected empty object, got %s", raw)
	}
}
