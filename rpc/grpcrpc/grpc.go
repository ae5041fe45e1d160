// Package grpcrpc carries JSON-RPC envelopes over gRPC.
//
// The service has a single unary method whose request and response are
// BytesValue wrappers around the JSON-RPC request and response envelopes.
// Using the well-known wrapper types keeps the package free of a
// protoc/codegen toolchain.
//
//	service Validator {
//	  rpc Call(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	}
package grpcrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName    = "xdao.xchain.validator.v1.Validator"
	callFullMethod = "/" + serviceName + "/Call"
)

// ValidatorServer is the server API for the Validator gRPC service.
type ValidatorServer interface {
	Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedValidatorServer can be embedded to have forward compatible implementations.
type UnimplementedValidatorServer struct{}

func (UnimplementedValidatorServer) Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Call not implemented")
}

// RegisterValidatorServer registers the Validator service on a gRPC server.
func RegisterValidatorServer(s grpc.ServiceRegistrar, srv ValidatorServer) {
	s.RegisterService(&Validator_ServiceDesc, srv)
}

// ValidatorClient is the client API for the Validator gRPC service.
type ValidatorClient interface {
	Call(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type validatorClient struct{ cc grpc.ClientConnInterface }

func NewValidatorClient(cc grpc.ClientConnInterface) ValidatorClient {
	return &validatorClient{cc: cc}
}

func (c *validatorClient) Call(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, callFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Validator_Call_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ValidatorServer).Call(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Validator_ServiceDesc is the grpc.ServiceDesc for the Validator service.
var Validator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: _Validator_Call_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "validator.proto",
}
