package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	bridgeoutadapter "dashext/internal/modules/bridge/adapter/out"
	"dashext/internal/modules/bridge/domain"
	"dashext/internal/modules/bridge/dto"
	"dashext/internal/modules/bridge/service"
	extensiondto "dashext/internal/modules/extension/dto"
	apperrors "dashext/internal/platform/errors"
)

type fakeExtensions struct {
	selected extensiondto.SelectOutput
	selErr   error
	extract  func(extensiondto.ExtractInput) (extensiondto.ExtractOutput, error)
	inputs   []extensiondto.ExtractInput
}

func (f *fakeExtensions) SelectArchive(context.Context) (extensiondto.SelectOutput, error) {
	return f.selected, f.selErr
}

func (f *fakeExtensions) Extract(_ context.Context, input extensiondto.ExtractInput) (extensiondto.ExtractOutput, error) {
	f.inputs = append(f.inputs, input)
	if f.extract == nil {
		return extensiondto.ExtractOutput{}, errors.New("not configured")
	}
	return f.extract(input)
}

func (f *fakeExtensions) List(context.Context) ([]extensiondto.InstalledInfo, error) { return nil, nil }
func (f *fakeExtensions) Remove(context.Context, string) error                        { return nil }

func newClient(ext *fakeExtensions) *service.ClientService {
	return service.NewClientService(bridgeoutadapter.NewLoopback(service.NewDispatcher(ext, nil)), nil)
}

func TestSelectFileOverChannel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		ext      *fakeExtensions
		selected bool
		want     error
	}{
		{name: "picked", ext: &fakeExtensions{selected: extensiondto.SelectOutput{Path: "/home/u/widgets.tar.gz", Selected: true}}, selected: true},
		{name: "cancelled", ext: &fakeExtensions{}},
		{name: "picker failure", ext: &fakeExtensions{selErr: fmt.Errorf("%w: open terminal", apperrors.ErrFilesystemFailure)}, want: apperrors.ErrFilesystemFailure},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := newClient(tc.ext).SelectFile(context.Background())
			if tc.want != nil {
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("select file: %v", err)
			}
			if out.Selected != tc.selected {
				t.Fatalf("unexpected output: %+v", out)
			}
		})
	}
}

func TestUploadAndExtractOverChannel(t *testing.T) {
	t.Parallel()
	ext := &fakeExtensions{extract: func(in extensiondto.ExtractInput) (extensiondto.ExtractOutput, error) {
		return extensiondto.ExtractOutput{Name: "widgets", TargetPath: in.DestinationRoot + "/widgets"}, nil
	}}
	out, err := newClient(ext).UploadAndExtract(context.Background(), dto.UploadInput{SourceArchive: "/home/u/widgets.tar.gz", DestinationRoot: "/data/ext"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if out.TargetPath != "/data/ext/widgets" {
		t.Fatalf("unexpected target: %+v", out)
	}
	if len(ext.inputs) != 1 || ext.inputs[0].SourceArchive != "/home/u/widgets.tar.gz" {
		t.Fatalf("host did not receive params: %+v", ext.inputs)
	}
}

func TestUploadAndExtractPreservesErrorKind(t *testing.T) {
	t.Parallel()
	for _, sentinel := range []error{
		apperrors.ErrTraversalRejected,
		apperrors.ErrInvalidArchive,
		apperrors.ErrFilesystemFailure,
		apperrors.ErrAlreadyExists,
		apperrors.ErrBusy,
	} {
		sentinel := sentinel
		ext := &fakeExtensions{extract: func(extensiondto.ExtractInput) (extensiondto.ExtractOutput, error) {
			return extensiondto.ExtractOutput{}, fmt.Errorf("%w: detail", sentinel)
		}}
		_, err := newClient(ext).UploadAndExtract(context.Background(), dto.UploadInput{SourceArchive: "/a.tar", DestinationRoot: "/r"})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected %v across the channel, got %v", sentinel, err)
		}
	}
}

type stubTransport struct {
	resp domain.Response
	err  error
}

func (s stubTransport) RoundTrip(context.Context, domain.Request) (domain.Response, error) {
	return s.resp, s.err
}

func TestClientChannelFailures(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		transport stubTransport
	}{
		{name: "unreachable", transport: stubTransport{err: errors.New("connection refused")}},
		{name: "empty response", transport: stubTransport{}},
		{name: "malformed result", transport: stubTransport{resp: domain.Response{Result: json.RawMessage(`"nope"`)}}},
		{name: "missing target", transport: stubTransport{resp: domain.Response{Result: json.RawMessage(`{}`)}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := service.NewClientService(tc.transport, nil)
			_, err := client.UploadAndExtract(context.Background(), dto.UploadInput{SourceArchive: "/a.tar", DestinationRoot: "/r"})
			if !errors.Is(err, apperrors.ErrChannelFailure) {
				t.Fatalf("expected channel failure, got %v", err)
			}
		})
	}
}

func TestDispatcherRejectsUntrustedRequests(t *testing.T) {
	t.Parallel()
	ext := &fakeExtensions{extract: func(extensiondto.ExtractInput) (extensiondto.ExtractOutput, error) {
		return extensiondto.ExtractOutput{TargetPath: "/r/x"}, nil
	}}
	dispatcher := service.NewDispatcher(ext, nil)
	cases := []struct {
		name string
		req  domain.Request
		kind apperrors.Kind
	}{
		{name: "unknown method", req: domain.Request{Method: "exec"}, kind: apperrors.KindInvalidInput},
		{name: "missing params", req: domain.Request{Method: domain.MethodUploadAndExtract}, kind: apperrors.KindInvalidInput},
		{name: "unknown field", req: domain.Request{Method: domain.MethodUploadAndExtract, Params: json.RawMessage(`{"sourceArchive":"/a.tar","destinationRoot":"/r","overwrite":true}`)}, kind: apperrors.KindInvalidInput},
		{name: "wrong type", req: domain.Request{Method: domain.MethodUploadAndExtract, Params: json.RawMessage(`{"sourceArchive":7}`)}, kind: apperrors.KindInvalidInput},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := dispatcher.Handle(context.Background(), tc.req)
			if resp.Error == nil || resp.Error.Kind != tc.kind {
				t.Fatalf("expected %s failure, got %+v", tc.kind, resp)
			}
			if err := resp.Validate(); err != nil {
				t.Fatalf("dispatcher produced invalid envelope: %v", err)
			}
		})
	}
	if len(ext.inputs) != 0 {
		t.Fatalf("rejected requests must not reach the extractor: %+v", ext.inputs)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	t.Parallel()
	ext := &fakeExtensions{extract: func(extensiondto.ExtractInput) (extensiondto.ExtractOutput, error) {
		panic("boom")
	}}
	resp := service.NewDispatcher(ext, nil).Handle(context.Background(), domain.Request{
		Method: domain.MethodUploadAndExtract,
		Params: json.RawMessage(`{"sourceArchive":"/a.tar","destinationRoot":"/r"}`),
	})
	if resp.Error == nil || resp.Error.Kind != apperrors.KindInternal {
		t.Fatalf("expected internal failure, got %+v", resp)
	}
}
