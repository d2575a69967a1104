package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey   = "component"
	serviceName    = "dashext.component.v1.Component"
	jsonCodecName  = "json"
	methodDescribe = "/" + serviceName + "/Describe"
	methodRender   = "/" + serviceName + "/Render"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "DASHEXT_COMPONENT",
	MagicCookieValue: "dashext",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Descriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

type RenderRequest struct {
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

type Frame struct {
	Content string `json:"content"`
}

type ComponentServer interface {
	Describe(ctx context.Context, in *Empty) (*Descriptor, error)
	Render(ctx context.Context, in *RenderRequest) (*Frame, error)
}

type ComponentClient interface {
	Describe(ctx context.Context) (*Descriptor, error)
	Render(ctx context.Context, in *RenderRequest) (*Frame, error)
}

type componentClient struct {
	conn *grpc.ClientConn
}

func NewComponentClient(conn *grpc.ClientConn) ComponentClient {
	return &componentClient{conn: conn}
}

func (c *componentClient) Describe(ctx context.Context) (*Descriptor, error) {
	out := &Descriptor{}
	if err := c.conn.Invoke(ctx, methodDescribe, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *componentClient) Render(ctx context.Context, in *RenderRequest) (*Frame, error) {
	out := &Frame{}
	if err := c.conn.Invoke(ctx, methodRender, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterComponentServer(server grpc.ServiceRegistrar, impl ComponentServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*ComponentServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Describe",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &Empty{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Describe(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDescribe}
					handler := func(ctx context.Context, req any) (any, error) {
						empty, ok := req.(*Empty)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Describe(ctx, empty)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
			{
				MethodName: "Render",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &RenderRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.Render(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRender}
					handler := func(ctx context.Context, req any) (any, error) {
						inReq, ok := req.(*RenderRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.Render(ctx, inReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "component-rpc-v1",
	}, impl)
}

type ComponentPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl ComponentServer
}

func (p *ComponentPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterComponentServer(server, p.Impl)
	return nil
}

func (p *ComponentPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewComponentClient(conn), nil
}

func PluginMap(impl ComponentServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &ComponentPlugin{Impl: impl},
	}
}

// Serve runs impl as a component plugin process. It does not return.
func Serve(impl ComponentServer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(impl),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
