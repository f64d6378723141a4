package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service is described with well-known types only, so no generated
// message code is needed:
//
//	service ResultService {
//	  rpc Latest(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Status(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Watch(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	  rpc Shutdown(google.protobuf.Empty) returns (google.protobuf.Empty);
//	}
const ServiceName = "camdet.ResultService"

const (
	ResultService_Latest_FullMethodName   = "/camdet.ResultService/Latest"
	ResultService_Status_FullMethodName   = "/camdet.ResultService/Status"
	ResultService_Watch_FullMethodName    = "/camdet.ResultService/Watch"
	ResultService_Shutdown_FullMethodName = "/camdet.ResultService/Shutdown"
)

type ResultServiceServer interface {
	Latest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, ResultService_WatchServer) error
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

type ResultService_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type resultServiceWatchServer struct {
	grpc.ServerStream
}

func (x *resultServiceWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterResultServiceServer(s grpc.ServiceRegistrar, srv ResultServiceServer) {
	s.RegisterService(&ResultService_ServiceDesc, srv)
}

type unaryCall func(ResultServiceServer, context.Context, *emptypb.Empty) (interface{}, error)

func handleUnary(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor, method string, call unaryCall) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(srv.(ResultServiceServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(srv.(ResultServiceServer), ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func latestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return handleUnary(srv, ctx, dec, interceptor, ResultService_Latest_FullMethodName, func(s ResultServiceServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
		return s.Latest(ctx, in)
	})
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return handleUnary(srv, ctx, dec, interceptor, ResultService_Status_FullMethodName, func(s ResultServiceServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
		return s.Status(ctx, in)
	})
}

func shutdownHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return handleUnary(srv, ctx, dec, interceptor, ResultService_Shutdown_FullMethodName, func(s ResultServiceServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
		return s.Shutdown(ctx, in)
	})
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ResultServiceServer).Watch(in, &resultServiceWatchServer{stream})
}

var ResultService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Latest",
			Handler:    latestHandler,
		},
		{
			MethodName: "Status",
			Handler:    statusHandler,
		},
		{
			MethodName: "Shutdown",
			Handler:    shutdownHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "camdet/result_service.proto",
}

type ResultServiceClient interface {
	Latest(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (ResultService_WatchClient, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type resultServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewResultServiceClient(cc grpc.ClientConnInterface) ResultServiceClient {
	return &resultServiceClient{cc}
}

func (c *resultServiceClient) Latest(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResultService_Latest_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultServiceClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ResultService_Status_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *resultServiceClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, ResultService_Shutdown_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type ResultService_WatchClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type resultServiceWatchClient struct {
	grpc.ClientStream
}

func (x *resultServiceWatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *resultServiceClient) Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (ResultService_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &ResultService_ServiceDesc.Streams[0], ResultService_Watch_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &resultServiceWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
