package grpcrpc_test

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	"xdao.co/xchain/rpc/grpcrpc"
	"xdao.co/xchain/validatortest"
)

func TestGRPCCallerConformance(t *testing.T) {
	validatortest.RunCallerConformance(t, func(t *testing.T, n *validatortest.Node) rpc.Caller {
		return validatortest.NewGRPCClient(t, n)
	})
}

func TestGRPCCaller_Timeout(t *testing.T) {
	c := validatortest.NewGRPCClient(t, validatortest.NewNode())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Call(ctx, rpc.MethodGetBlocks, nil, nil)
	if model.CodeOf(err) != "timeout" {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestServerWithoutHandler(t *testing.T) {
	_, err := (&grpcrpc.Server{}).Call(context.Background(), nil)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestUnimplementedServer(t *testing.T) {
	var srv grpcrpc.UnimplementedValidatorServer
	_, err := srv.Call(context.Background(), nil)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

func TestRegistryOpen(t *testing.T) {
	if _, _, err := rpc.Open("grpc", map[string]string{}); err == nil {
		t.Fatalf("expected missing target error")
	}
	if _, _, err := rpc.Open("grpc", map[string]string{"target": "localhost:1", "timeout": "x"}); err == nil {
		t.Fatalf("expected bad timeout error")
	}

	// Dialing is lazy, so an unused target still opens.
	caller, closeFn, err := rpc.Open("grpc", map[string]string{"target": "localhost:1", "timeout": "100ms", "max-msg-bytes": "1048576"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = caller.Call(ctx, rpc.MethodGetBlocks, nil, nil)
	if !model.IsKind(err, model.KindNetwork) {
		t.Fatalf("expected Network error, got %v", err)
	}
}
