package model

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/Code rather than matching error strings.
// SignerError and ValidatorRejection in particular mean different things to a
// user: the former is "check the wallet and try again", the latter is "the
// network processed the transaction and rejected it".
type Kind string

const (
	KindAddressFormat        Kind = "AddressFormat"
	KindSerialization        Kind = "Serialization"
	KindSigner               Kind = "Signer"
	KindNetwork              Kind = "Network"
	KindValidatorRejection   Kind = "ValidatorRejection"
	KindSubscriptionProtocol Kind = "SubscriptionProtocol"
	KindInternal             Kind = "Internal"
)

// Error is the library's structured error type.
//
// Code is a stable, kebab-case identifier naming the violated rule
// (e.g. "unsupported-category", "bad-checksum", "handshake-rejected").
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error by Kind and Code, so sentinel values such as
// ErrUnsupportedCategory work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewError returns a structured error.
func NewError(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// WrapError returns a structured error carrying cause.
func WrapError(kind Kind, code, msg string, cause error) error {
	if cause == nil {
		return NewError(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func AddressFormatError(code, msg string) error {
	return NewError(KindAddressFormat, code, msg)
}

func SerializationError(code, msg string, cause error) error {
	return WrapError(KindSerialization, code, msg, cause)
}

func SignerError(code, msg string, cause error) error {
	return WrapError(KindSigner, code, msg, cause)
}

func NetworkError(code, msg string, cause error) error {
	return WrapError(KindNetwork, code, msg, cause)
}

func ValidatorRejection(code, msg string) error {
	return NewError(KindValidatorRejection, code, msg)
}

func SubscriptionProtocolError(code, msg string) error {
	return NewError(KindSubscriptionProtocol, code, msg)
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedCategory = &Error{Kind: KindSerialization, Code: "unsupported-category"}
	ErrTxRejected          = &Error{Kind: KindValidatorRejection, Code: "tx-rejected"}
	ErrNotConnected        = &Error{Kind: KindSubscriptionProtocol, Code: "not-connected"}
)

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CodeOf returns the stable Code for a structured error, or "" if unknown.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
