package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"xdao.co/xchain/model"
)

// CustomPrefix prefixes application-defined categories.
const CustomPrefix = "CUSTOM:"

// jsonSchema is a category whose payloads are JSON values checked against a
// JSON Schema (draft 2020-12). The wire form is RFC 8785 canonical JSON, so
// equal payloads always encode to equal bytes.
type jsonSchema struct {
	category string
	compiled *jsonschema.Schema
}

// NewJSONSchema compiles doc and returns a Schema for category.
//
// Payloads may be any value encoding/json can marshal. Decode returns the
// generic form (map[string]any, []any, float64, string, bool, nil).
func NewJSONSchema(category, doc string) (Schema, error) {
	if category == "" {
		return nil, fmt.Errorf("schema: category is required")
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://schemas.xchain.local/%s.schema.json", strings.ReplaceAll(category, ":", "/"))
	if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema: load %s: %w", category, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", category, err)
	}
	return &jsonSchema{category: category, compiled: compiled}, nil
}

// MustJSONSchema is like NewJSONSchema but panics on error.
func MustJSONSchema(category, doc string) Schema {
	s, err := NewJSONSchema(category, doc)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *jsonSchema) Category() string { return s.category }

func (s *jsonSchema) Validate(payload any) error {
	_, err := s.canonical(payload)
	return err
}

func (s *jsonSchema) Encode(payload any) ([]byte, error) {
	return s.canonical(payload)
}

func (s *jsonSchema) Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, model.SerializationError("corrupt-bytes", "decode "+s.category, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return nil, model.SerializationError("invalid-payload", s.category+": decoded payload does not match schema", err)
	}
	return v, nil
}

func (s *jsonSchema) canonical(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, model.SerializationError("invalid-payload", s.category+": payload is not JSON", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, model.SerializationError("invalid-payload", s.category+": payload is not JSON", err)
	}
	if err := s.compiled.Validate(generic); err != nil {
		return nil, model.SerializationError("invalid-payload", s.category+": schema validation failed", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, model.SerializationError("invalid-payload", s.category+": canonicalize", err)
	}
	return out, nil
}
