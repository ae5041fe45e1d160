package grpcrpc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
)

// Client implements rpc.Caller over the Validator gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client ValidatorClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ rpc.Caller = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the built-in dial options (tests use it for bufconn).
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, model.NetworkError("unreachable", "grpc dial "+target, err)
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewValidatorClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	if c == nil || c.client == nil {
		return model.NetworkError("not-connected", method+": grpc client is not dialed", nil)
	}
	id := uuid.NewString()
	body, err := rpc.EncodeRequest(id, method, params)
	if err != nil {
		return err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	reply, err := c.client.Call(ctx, wrapperspb.Bytes(body))
	if err != nil {
		return mapRPC(method, err)
	}
	return rpc.DecodeResponse(reply.GetValue(), id, method, result)
}
