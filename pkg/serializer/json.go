package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// envelope is the self-describing wire form: a type tag plus the raw
// encoded payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JSONSerializer is the default Serializer implementation. It requires no
// codegen step, unlike the protobuf approach the teacher repo hardcodes
// (dropped — see DESIGN.md) and satisfies the opaque round-trip contract
// with stdlib encoding/json alone.
type JSONSerializer struct {
	registry *Registry
}

// NewJSONSerializer builds a JSON serializer backed by the given registry.
func NewJSONSerializer(registry *Registry) *JSONSerializer {
	return &JSONSerializer{registry: registry}
}

// Serialize writes object as a {type, payload} JSON envelope.
func (s *JSONSerializer) Serialize(w io.Writer, object any) error {
	tag, err := s.registry.TagOf(object)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	payload, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	if err := json.NewEncoder(w).Encode(envelope{Type: tag, Payload: payload}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return nil
}

// Deserialize reads a {type, payload} JSON envelope and reconstructs the
// registered concrete type.
func (s *JSONSerializer) Deserialize(r io.Reader) (any, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	target, err := s.registry.New(env.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return target, nil
}

// Bytes serializes a single value to a byte slice.
func Bytes(s Serializer, object any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(&buf, object); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes a single value from a byte slice.
func FromBytes(s Serializer, data []byte) (any, error) {
	return s.Deserialize(bytes.NewReader(data))
}
