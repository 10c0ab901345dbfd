package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/embedrun/driver"
)

// connectHandlers mounts one Connect unary handler per operation.
func (s *RunService) connectHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	for op := range methods {
		op := op
		path := Procedure(op)
		mux.Handle(path, connect.NewUnaryHandler(path,
			func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
				resp, err := s.Run(ctx, op, req.Msg)
				if err != nil {
					return nil, err
				}
				return connect.NewResponse(resp), nil
			},
			opts...,
		))
	}
}

// runHandler is the handler type gRPC checks registrations against.
type runHandler interface {
	Run(ctx context.Context, op driver.Op, msg *structpb.Struct) (*structpb.Struct, error)
}

var runServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*runHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methods[driver.OpRun], Handler: grpcHandler(driver.OpRun)},
		{MethodName: methods[driver.OpRunBytecode], Handler: grpcHandler(driver.OpRunBytecode)},
		{MethodName: methods[driver.OpRunSource], Handler: grpcHandler(driver.OpRunSource)},
		{MethodName: methods[driver.OpRunSourceFile], Handler: grpcHandler(driver.OpRunSourceFile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "embedrun/v1/run.proto",
}

func grpcHandler(op driver.Op) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := srv.(runHandler).Run(ctx, op, req.(*structpb.Struct))
			if err != nil {
				return nil, grpcError(err)
			}
			return resp, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Procedure(op)}
		return interceptor(ctx, in, info, handler)
	}
}

// grpcError converts a Connect error to a gRPC status. Connect codes use
// the gRPC numbering.
func grpcError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return status.Error(codes.Code(cerr.Code()), cerr.Message())
	}
	return status.Error(codes.Unknown, err.Error())
}
