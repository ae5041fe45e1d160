package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"xdao.co/xchain/model"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// HTTPClient is a Caller that POSTs JSON-RPC envelopes to one endpoint.
// It is safe for concurrent use.
type HTTPClient struct {
	url     string
	hc      *http.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		hc := *c.hc
		hc.Timeout = d
		c.hc = &hc
	}
}

// WithRateLimit caps outgoing calls at rps with the given burst. rps <= 0
// disables limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(log *logrus.Entry) HTTPOption {
	return func(c *HTTPClient) {
		if log != nil {
			c.log = log
		}
	}
}

// NewHTTP returns a Caller for the JSON-RPC endpoint at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		url: url,
		hc:  &http.Client{Timeout: 30 * time.Second},
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithFields(logrus.Fields{"component": "rpc", "endpoint": url})
	return c
}

// URL returns the endpoint.
func (c *HTTPClient) URL() string { return c.url }

func (c *HTTPClient) Call(ctx context.Context, method string, params []any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NetworkError("rate-limited", method+": rate limiter", err)
		}
	}

	id := uuid.NewString()
	body, err := EncodeRequest(id, method, params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.NetworkError("bad-endpoint", fmt.Sprintf("%s: build request for %q", method, c.url), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return transportError(ctx, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(ctx, method, err)
	}
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"id":       id,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("rpc call")

	if resp.StatusCode/100 != 2 {
		return model.NetworkError("http-status", fmt.Sprintf("%s: unexpected HTTP status %d", method, resp.StatusCode), nil)
	}
	return DecodeResponse(raw, id, method, result)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

func transportError(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.NetworkError("timeout", method+": "+ctxErr.Error(), ctxErr)
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return model.NetworkError("timeout", method+": request timed out", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.NetworkError("unreachable", method+": endpoint unreachable", err)
	}
	// The request may have been written before the connection failed.
	return model.NetworkError("connection-lost", method+": connection lost", err)
}

// HTTPHandler serves h as a JSON-RPC endpoint.
func HTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(Dispatch(r.Context(), h, body))
	})
}
