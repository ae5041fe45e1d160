package grpcrpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/xchain/rpc"
)

// Server exposes an rpc.Handler over the Validator gRPC service.
//
// JSON-RPC level failures travel inside the response envelope; gRPC status
// errors are reserved for the server itself being unusable.
type Server struct {
	UnimplementedValidatorServer
	Handler rpc.Handler
}

func (s *Server) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Handler == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing handler")
	}
	return wrapperspb.Bytes(rpc.Dispatch(ctx, s.Handler, in.GetValue())), nil
}
