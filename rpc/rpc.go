// Package rpc carries JSON-RPC requests to the validator network.
//
// The request/response envelope is JSON-RPC 2.0 regardless of transport:
// HTTP POSTs the envelope directly, the gRPC transport (rpc/grpcrpc) wraps it
// in a BytesValue. Transports are selected by name through the registry in
// registry.go.
//
// Errors returned by a Caller are *model.Error values: transport failures are
// KindNetwork, a server reporting a rejected transaction is
// KindValidatorRejection.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"xdao.co/xchain/model"
)

// Caller performs one JSON-RPC call. params are sent positionally. When
// result is non-nil the JSON result is decoded into it.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// Handler serves decoded requests on the server side. Returning an *Error
// sends it to the caller verbatim; any other error becomes CodeInternal.
type Handler interface {
	HandleRPC(ctx context.Context, method string, params []json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, method string, params []json.RawMessage) (any, error)

func (f HandlerFunc) HandleRPC(ctx context.Context, method string, params []json.RawMessage) (any, error) {
	return f(ctx, method, params)
}

const Version = "2.0"

// Standard and server-defined JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	// CodeTxRejected is returned by the validator when it refuses a
	// transaction outright (bad signature, duplicate salt, ...).
	CodeTxRejected = -32010
)

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Errorf returns an *Error with the given code.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// EncodeRequest marshals a request envelope.
func EncodeRequest(id, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	b, err := json.Marshal(Request{JSONRPC: Version, ID: id, Method: method, Params: params})
	if err != nil {
		return nil, model.SerializationError("bad-params", "encode "+method+" params", err)
	}
	return b, nil
}

// DecodeResponse checks the response envelope for id and decodes its result
// into result (if non-nil).
func DecodeResponse(body []byte, id, method string, result any) error {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.NetworkError("malformed-response", method+": response is not a JSON-RPC envelope", err)
	}
	if resp.ID != id {
		return model.NetworkError("malformed-response", fmt.Sprintf("%s: response id %q does not match request id %q", method, resp.ID, id), nil)
	}
	if resp.Error != nil {
		return mapRPCError(method, resp.Error)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return model.NetworkError("malformed-response", method+": unexpected result shape", err)
	}
	return nil
}

func mapRPCError(method string, e *Error) error {
	if e.Code == CodeTxRejected {
		return &model.Error{Kind: model.KindValidatorRejection, Code: model.ErrTxRejected.Code, Message: method + ": " + e.Message, Cause: e}
	}
	return model.NetworkError("rpc-error", method+" failed", e)
}

// Dispatch decodes one request envelope, runs it through h and returns the
// encoded response. It never fails: every problem becomes an error response.
func Dispatch(ctx context.Context, h Handler, body []byte) []byte {
	var req struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      string            `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	resp := Response{JSONRPC: Version}
	if err := json.Unmarshal(body, &req); err != nil {
		resp.Error = Errorf(CodeParseError, "parse error: %v", err)
		return mustMarshal(resp)
	}
	resp.ID = req.ID
	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = Errorf(CodeInvalidRequest, "invalid request")
		return mustMarshal(resp)
	}

	out, err := h.HandleRPC(ctx, req.Method, req.Params)
	if err != nil {
		if rpcErr, ok := err.(*Error); ok {
			resp.Error = rpcErr
		} else {
			resp.Error = Errorf(CodeInternal, "%v", err)
		}
		return mustMarshal(resp)
	}
	result, err := json.Marshal(out)
	if err != nil {
		resp.Error = Errorf(CodeInternal, "encode result: %v", err)
		return mustMarshal(resp)
	}
	resp.Result = result
	return mustMarshal(resp)
}

func mustMarshal(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Response only holds raw JSON and strings.
		panic(err)
	}
	return b
}

// Params decodes positional params into dst pointers. Missing trailing params
// leave their destination untouched; nil destinations skip a position.
func Params(params []json.RawMessage, dst ...any) error {
	if len(params) > len(dst) {
		return Errorf(CodeInvalidParams, "expected at most %d params, got %d", len(dst), len(params))
	}
	for i, raw := range params {
		if dst[i] == nil || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return Errorf(CodeInvalidParams, "param %d: %v", i, err)
		}
	}
	return nil
}
