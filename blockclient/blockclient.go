// Package blockclient reads block history from the validator network.
package blockclient

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"xdao.co/xchain/codec"
	"xdao.co/xchain/internal/tracing"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
)

const tracerName = "xdao.co/xchain/blockclient"

// Client is safe for concurrent use.
type Client struct {
	caller    rpc.Caller
	log       *logrus.Entry
	tracer    trace.Tracer
	now       func() time.Time
	checkHash bool
}

type Option func(*Client)

func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithClock replaces time.Now for default query start times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHashCheck makes Get recompute every block hash from the returned
// bytes and fail on a mismatch. Only enable it against networks that hash
// blocks the same way as codec.BlockHash.
func WithHashCheck() Option {
	return func(c *Client) { c.checkHash = true }
}

func New(caller rpc.Caller, opts ...Option) *Client {
	c := &Client{
		caller: caller,
		log:    logrus.NewEntry(logrus.StandardLogger()),
		tracer: tracing.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "blockclient")
	return c
}

// Get returns the block with the given hash as a one-block page (empty if
// the network does not know it), or, when hash is empty, the page of blocks
// selected by q. Every block and transaction is decoded through the codec.
func (c *Client) Get(ctx context.Context, hash string, q rpc.Query) (page model.BlockPage, err error) {
	ctx, finish := tracing.Start(ctx, c.tracer, "blockclient.Get",
		attribute.String("block.hash", hash),
		attribute.String("query.direction", string(q.Direction)),
	)
	defer func() { finish(err) }()

	var raw rpc.Page
	if hash != "" {
		if err := c.caller.Call(ctx, rpc.MethodGetBlockByHash, []any{hash}, &raw); err != nil {
			return model.BlockPage{}, asNetwork(err, "get block")
		}
		if len(raw.Blocks) > 1 {
			return model.BlockPage{}, model.NetworkError("malformed-response", "lookup by hash returned more than one block", nil)
		}
	} else {
		r, err := q.Resolve(c.now)
		if err != nil {
			return model.BlockPage{}, err
		}
		params := []any{r.StartMs, string(r.Direction), true, r.PageSize, r.Page}
		if err := c.caller.Call(ctx, rpc.MethodGetBlocks, params, &raw); err != nil {
			return model.BlockPage{}, asNetwork(err, "list blocks")
		}
	}

	page, err = raw.Decode()
	if err != nil {
		return model.BlockPage{}, err
	}
	if c.checkHash {
		for _, b := range page.Blocks {
			if got := codec.BlockHash(b.Block); got != b.Hash {
				return model.BlockPage{}, model.SerializationError("hash-mismatch", "block "+b.Hash+" hashes to "+got, nil)
			}
		}
	}
	c.log.WithFields(logrus.Fields{"hash": hash, "blocks": len(page.Blocks)}).Debug("blocks fetched")
	return page, nil
}

// ByHash is Get for a single hash; ok is false when the block is unknown.
func (c *Client) ByHash(ctx context.Context, hash string) (rec model.BlockRecord, ok bool, err error) {
	if hash == "" {
		return model.BlockRecord{}, false, model.SerializationError("empty-hash", "block hash is required", nil)
	}
	page, err := c.Get(ctx, hash, rpc.Query{})
	if err != nil || len(page.Blocks) == 0 {
		return model.BlockRecord{}, false, err
	}
	return page.Blocks[0], true, nil
}

func asNetwork(err error, what string) error {
	var me *model.Error
	if errors.As(err, &me) {
		return err
	}
	return model.NetworkError("rpc", what, err)
}
