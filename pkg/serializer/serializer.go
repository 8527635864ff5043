// Package serializer defines the opaque text-codec contract spec §6
// requires and a default JSON implementation. The contract deliberately
// does not mandate a syntax — only round-trip fidelity and runtime type
// identity — so a vendor can swap in protobuf, msgpack, or anything else
// without touching the rest of the module.
package serializer

import (
	"fmt"
	"io"

	"github.com/kouweizhong/eventcore/pkg/domain"
)

// Serializer writes a self-describing text form of a message (carrying
// enough type identity for Deserialize to reconstruct the original
// concrete type) and reads it back.
type Serializer interface {
	// Serialize writes object's self-describing form to w.
	Serialize(w io.Writer, object any) error

	// Deserialize reads a self-describing form from r and reconstructs the
	// original concrete type. Fails with domain.ErrSerialization wrapped
	// if the type tag is unknown or the payload does not decode.
	Deserialize(r io.Reader) (any, error)
}

// Registry maps a stable type tag to a zero-value constructor, so
// Deserialize can allocate the right concrete type before decoding into
// it. Registration is explicit (spec §9 design notes: replace reflection
// discovery with explicit registry-based dispatch).
type Registry struct {
	constructors map[string]func() any
	tagOf        func(object any) (string, error)
}

// NewRegistry builds an empty type registry. tagOf derives the wire type
// tag for a concrete value at serialize time (typically a type switch in
// the caller's package, since this package must stay agnostic of domain
// types).
func NewRegistry(tagOf func(object any) (string, error)) *Registry {
	return &Registry{
		constructors: make(map[string]func() any),
		tagOf:        tagOf,
	}
}

// Register associates a type tag with a zero-value constructor.
// Re-registering the same tag overwrites the previous constructor — the
// registry is a startup-time wiring table, not a runtime guard.
func (r *Registry) Register(tag string, zero func() any) {
	r.constructors[tag] = zero
}

// New allocates the zero value registered for tag, or an error if tag is
// unknown.
func (r *Registry) New(tag string) (any, error) {
	ctor, ok := r.constructors[tag]
	if !ok {
		return nil, fmt.Errorf("serializer: unknown type tag %q", tag)
	}
	return ctor(), nil
}

// TagOf derives the wire tag for a concrete value.
func (r *Registry) TagOf(object any) (string, error) {
	return r.tagOf(object)
}

// MessageTag is a ready-made tagOf for NewRegistry that works for any
// domain.VersionedEvent (tagged by EventType) or domain.Command (tagged by
// CommandType), which covers every message type this module's own
// aggregates and examples define. Callers with other message shapes can
// still supply their own tagOf.
func MessageTag(object any) (string, error) {
	switch v := object.(type) {
	case domain.VersionedEvent:
		return v.EventType(), nil
	case domain.Command:
		return v.CommandType(), nil
	default:
		return "", fmt.Errorf("serializer: cannot derive a type tag for %T", object)
	}
}
