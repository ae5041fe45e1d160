package validatortest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/xchain/rpc"
	"xdao.co/xchain/rpc/grpcrpc"
)

// Paths served by Handler.
const (
	RPCPath = "/rpc"
	WSPath  = "/ws"
)

// Handler serves JSON-RPC on RPCPath and the subscription protocol on WSPath.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(RPCPath, rpc.HTTPHandler(n))
	mux.HandleFunc(WSPath, n.ServeWS)
	return mux
}

// RegisterGRPC exposes n on a gRPC server.
func (n *Node) RegisterGRPC(s grpc.ServiceRegistrar) {
	grpcrpc.RegisterValidatorServer(s, &grpcrpc.Server{Handler: n})
}

// Server is a Node behind an httptest server.
type Server struct {
	*Node
	HTTP   *httptest.Server
	RPCURL string
	WSURL  string
}

// NewServer starts a Node on a local HTTP listener. It is closed when the
// test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	n := NewNode(opts...)
	hs := httptest.NewServer(n.Handler())
	t.Cleanup(func() {
		n.DropConnections()
		hs.Close()
	})
	return &Server{
		Node:   n,
		HTTP:   hs,
		RPCURL: hs.URL + RPCPath,
		WSURL:  "ws" + strings.TrimPrefix(hs.URL, "http") + WSPath,
	}
}

// NewGRPCClient serves n over an in-memory gRPC listener and returns a
// connected client. Both are closed when the test ends.
func NewGRPCClient(t testing.TB, n *Node) *grpcrpc.Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	n.RegisterGRPC(srv)
	go func() {
		_ = srv.Serve(lis)
	}()

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.DialContext: %v", err)
	}
	client := grpcrpc.NewClient(cc)
	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
	})
	return client
}
