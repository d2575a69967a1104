package out

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	"dashext/internal/modules/bridge/domain"
	bridgeout "dashext/internal/modules/bridge/port/out"
	apperrors "dashext/internal/platform/errors"
)

const serviceName = "Bridge"

// DefaultCallTimeout bounds a call that carries no deadline of its own.
// Picking a file waits on a person, so it is long.
const DefaultCallTimeout = 10 * time.Minute

type JSONRPCServer struct{}

func NewJSONRPCServer() bridgeout.Server {
	return &JSONRPCServer{}
}

type rpcHandler struct {
	ctx context.Context
	h   bridgeout.Handler
}

func (s *rpcHandler) Invoke(req domain.Request, resp *domain.Response) error {
	*resp = s.h.Handle(s.ctx, req)
	return nil
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler bridgeout.Handler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()
	defer os.Remove(socketPath)

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName(serviceName, &rpcHandler{ctx: ctx, h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// JSONRPCTransport dials the host socket once per request.
type JSONRPCTransport struct {
	socketPath string
}

func NewJSONRPCTransport(socketPath string) bridgeout.Transport {
	return &JSONRPCTransport{socketPath: socketPath}
}

func (t *JSONRPCTransport) RoundTrip(ctx context.Context, req domain.Request) (domain.Response, error) {
	client, err := dialClient(ctx, t.socketPath)
	if err != nil {
		return domain.Response{}, fmt.Errorf("%w: dial host: %v", apperrors.ErrChannelFailure, err)
	}
	defer client.Close()

	var resp domain.Response
	call := client.Go(serviceName+".Invoke", req, &resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return domain.Response{}, fmt.Errorf("%w: %s: %v", apperrors.ErrChannelFailure, req.Method, ctx.Err())
	case done := <-call.Done:
		if done.Error != nil {
			return domain.Response{}, fmt.Errorf("%w: %s: %v", apperrors.ErrChannelFailure, req.Method, done.Error)
		}
	}
	return resp, nil
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(DefaultCallTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)
	return rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)), nil
}
