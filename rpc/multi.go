package rpc

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	"xdao.co/xchain/model"
)

// Multi provides deterministic, ordered failover across several Callers.
//
// Callers are tried in slice order; callers MUST supply a fixed order. Only
// network failures move on to the next caller. Any other outcome (a result, a
// rejection, a decode error) is returned as is, since another endpoint would
// see the same request. Methods that are not Idempotent move on only when
// the failure is Undelivered.
type Multi struct {
	Callers []Caller
}

var _ Caller = Multi{}

func (m Multi) Call(ctx context.Context, method string, params []any, result any) error {
	if len(m.Callers) == 0 {
		return model.NetworkError("no-endpoints", "rpc: Multi has no callers", nil)
	}
	var errs error
	for _, c := range m.Callers {
		err := c.Call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if !model.IsKind(err, model.KindNetwork) || ctx.Err() != nil {
			return err
		}
		if !Idempotent(method) && !Undelivered(err) {
			return err
		}
		errs = multierr.Append(errs, err)
	}
	return model.NetworkError("all-endpoints-failed", method+": every endpoint failed", errs)
}

// Idempotent reports whether method may be sent again to another endpoint.
// A submission may already have been accepted by the first one.
func Idempotent(method string) bool {
	return method != MethodSendTransaction
}

// Undelivered reports whether err shows the request never reached the
// endpoint: it could not be dialed or was held back on the client.
func Undelivered(err error) bool {
	switch model.CodeOf(err) {
	case "unreachable", "rate-limited", "not-connected", "bad-endpoint":
		return true
	default:
		return false
	}
}

// Close closes every caller that has a Close method and combines the errors.
func (m Multi) Close() error {
	var errs error
	for _, c := range m.Callers {
		if cl, ok := c.(interface{ Close() error }); ok {
			errs = multierr.Append(errs, cl.Close())
		}
	}
	return errs
}

// Errors unwraps the per-endpoint failures of an all-endpoints-failed error.
func Errors(err error) []error {
	var e *model.Error
	if !errors.As(err, &e) || e.Code != "all-endpoints-failed" {
		return nil
	}
	return multierr.Errors(e.Cause)
}
