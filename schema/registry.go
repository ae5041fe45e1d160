// Package schema maps transaction categories to the binary schema of their
// payload bytes.
//
// Each category owns exactly one Schema. Schemas are independent and
// additive: registering a category never requires touching another schema or
// the envelope codec. Registries are explicit values; there is no
// process-wide registry.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"xdao.co/xchain/model"
)

// Schema encodes and decodes the payload of one category.
//
// Encode must validate the payload before producing bytes.
type Schema interface {
	Category() string
	Validate(payload any) error
	Encode(payload any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Registry is a category -> Schema mapping. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: map[string]Schema{}}
}

// DefaultRegistry returns a new registry preloaded with the built-in
// categories (INIT_DID, INIT_SESSION_KEY, EMAIL).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(InitDIDSchema())
	r.MustRegister(InitSessionKeySchema())
	r.MustRegister(EmailSchema())
	return r
}

// Register adds s. Registering a category twice is an error.
func (r *Registry) Register(s Schema) error {
	if s == nil {
		return fmt.Errorf("schema: nil schema")
	}
	category := s.Category()
	if category == "" {
		return fmt.Errorf("schema: category is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[category]; exists {
		return fmt.Errorf("schema: category %q already registered", category)
	}
	r.schemas[category] = s
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(s Schema) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the schema for category, or an unsupported-category
// Serialization error.
func (r *Registry) Lookup(category string) (Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[category]
	r.mu.RUnlock()
	if !ok {
		return nil, model.SerializationError(model.ErrUnsupportedCategory.Code, fmt.Sprintf("unsupported category %q", category), nil)
	}
	return s, nil
}

// Categories returns the registered categories, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for c := range r.schemas {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Encode validates payload against the category's schema and encodes it.
func (r *Registry) Encode(category string, payload any) ([]byte, error) {
	s, err := r.Lookup(category)
	if err != nil {
		return nil, err
	}
	return s.Encode(payload)
}

// Decode decodes b with the category's schema.
func (r *Registry) Decode(category string, b []byte) (any, error) {
	s, err := r.Lookup(category)
	if err != nil {
		return nil, err
	}
	return s.Decode(b)
}

// DecodeAs decodes b and asserts the payload type.
func DecodeAs[T any](r *Registry, category string, b []byte) (T, error) {
	var zero T
	v, err := r.Decode(category, b)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, model.SerializationError("payload-type", fmt.Sprintf("%s decodes to %T, not %T", category, v, zero), nil)
	}
	return out, nil
}

func invalid(category, format string, args ...any) error {
	return model.SerializationError("invalid-payload", category+": "+fmt.Sprintf(format, args...), nil)
}
