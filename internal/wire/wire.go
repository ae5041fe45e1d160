// Package wire holds the protowire read helpers shared by the envelope codec
// and the payload schemas.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/xchain/model"
)

// Reader consumes one field value at a time from a protobuf message body.
type Reader struct {
	msg string
	buf []byte
}

// FieldFunc handles one field. It must consume the value through r.
type FieldFunc func(num protowire.Number, typ protowire.Type, r *Reader) error

// Walk iterates over the fields of b in order. msg names the message in errors.
func Walk(b []byte, msg string, fn FieldFunc) error {
	r := &Reader{msg: msg, buf: b}
	for len(r.buf) > 0 {
		num, typ, n := protowire.ConsumeTag(r.buf)
		if n < 0 {
			return Corrupt(msg, "bad tag", protowire.ParseError(n))
		}
		r.buf = r.buf[n:]
		if err := fn(num, typ, r); err != nil {
			return err
		}
	}
	return nil
}

// Corrupt returns the Serialization error used for undecodable input.
func Corrupt(msg, what string, cause error) error {
	return model.SerializationError("corrupt-bytes", fmt.Sprintf("decode %s: %s", msg, what), cause)
}

func (r *Reader) expect(num protowire.Number, got, want protowire.Type) error {
	if got != want {
		return Corrupt(r.msg, fmt.Sprintf("field %d: unexpected wire type %d", num, got), nil)
	}
	return nil
}

// Varint reads a varint field value.
func (r *Reader) Varint(num protowire.Number, typ protowire.Type) (uint64, error) {
	if err := r.expect(num, typ, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(r.buf)
	if n < 0 {
		return 0, Corrupt(r.msg, fmt.Sprintf("field %d", num), protowire.ParseError(n))
	}
	r.buf = r.buf[n:]
	return v, nil
}

// Bytes reads a length-delimited field value. The result is a copy.
func (r *Reader) Bytes(num protowire.Number, typ protowire.Type) ([]byte, error) {
	if err := r.expect(num, typ, protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(r.buf)
	if n < 0 {
		return nil, Corrupt(r.msg, fmt.Sprintf("field %d", num), protowire.ParseError(n))
	}
	r.buf = r.buf[n:]
	return append([]byte{}, v...), nil
}

// String reads a length-delimited field value as a string.
func (r *Reader) String(num protowire.Number, typ protowire.Type) (string, error) {
	b, err := r.Bytes(num, typ)
	return string(b), err
}

// Bool reads a varint field value as a bool.
func (r *Reader) Bool(num protowire.Number, typ protowire.Type) (bool, error) {
	v, err := r.Varint(num, typ)
	return v != 0, err
}

// Skip discards a field value of any wire type.
func (r *Reader) Skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, r.buf)
	if n < 0 {
		return Corrupt(r.msg, fmt.Sprintf("field %d", num), protowire.ParseError(n))
	}
	r.buf = r.buf[n:]
	return nil
}

// AppendString appends a non-empty string field.
func AppendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendBytes appends a non-empty bytes field.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendVarint appends a non-zero varint field.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendMessage appends an embedded message field, even when empty.
func AppendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// AppendRepeatedString appends every element, including empty ones.
func AppendRepeatedString(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}
