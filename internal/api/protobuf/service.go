package protobuf

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "bfm.info.v1.InfoService"

// InfoServiceServer is the server API for the info service. Requests and
// responses are google.protobuf.Struct messages.
type InfoServiceServer interface {
	Info(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Current(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv InfoServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InfoServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(InfoServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InfoServiceDesc describes the info service for grpc.Server.RegisterService
var InfoServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InfoServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Info", Handler: unaryHandler("Info", InfoServiceServer.Info)},
		{MethodName: "Current", Handler: unaryHandler("Current", InfoServiceServer.Current)},
		{MethodName: "Validate", Handler: unaryHandler("Validate", InfoServiceServer.Validate)},
		{MethodName: "Refresh", Handler: unaryHandler("Refresh", InfoServiceServer.Refresh)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bfm/info/v1/info.proto",
}

// RegisterInfoServiceServer registers srv with s
func RegisterInfoServiceServer(s grpc.ServiceRegistrar, srv InfoServiceServer) {
	s.RegisterService(&InfoServiceDesc, srv)
}

// Client calls the info service over a client connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client for the info service
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Info lists migrations; req may carry "view" and "state"
func (c *Client) Info(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Info", req, opts...)
}

// Current returns the current migration
func (c *Client) Current(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Current", req, opts...)
}

// Validate reports the first integrity problem
func (c *Client) Validate(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Validate", req, opts...)
}

// Refresh refreshes the migration info or queues a refresh job
func (c *Client) Refresh(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Refresh", req, opts...)
}
