package schema

import "fmt"

// message is a payload struct with a protobuf-compatible wire form.
type message interface {
	validate(category string) error
	marshal() []byte
}

// typed adapts a message type T (used through *T) to Schema.
type typed[T any, P interface {
	*T
	message
}] struct {
	category  string
	unmarshal func([]byte) (T, error)
}

func (s typed[T, P]) Category() string { return s.category }

func (s typed[T, P]) cast(payload any) (P, error) {
	switch v := payload.(type) {
	case T:
		return P(&v), nil
	case P:
		if v == nil {
			return nil, invalid(s.category, "nil payload")
		}
		return v, nil
	default:
		var zero T
		return nil, invalid(s.category, "payload must be %T, got %T", zero, payload)
	}
}

func (s typed[T, P]) Validate(payload any) error {
	p, err := s.cast(payload)
	if err != nil {
		return err
	}
	return p.validate(s.category)
}

func (s typed[T, P]) Encode(payload any) ([]byte, error) {
	p, err := s.cast(payload)
	if err != nil {
		return nil, err
	}
	if err := p.validate(s.category); err != nil {
		return nil, err
	}
	return p.marshal(), nil
}

func (s typed[T, P]) Decode(b []byte) (any, error) {
	v, err := s.unmarshal(b)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s typed[T, P]) String() string { return fmt.Sprintf("schema(%s)", s.category) }
