// Package structure defines the PackStream Structure type — a tagged
// tuple of {signature, fields} — and the TypeTransformer registry that
// maps application value types to and from tagged structures (spec
// §3.2, §4.4).
package structure

import "fmt"

// Structure is a tagged tuple: a signature byte plus an ordered
// sequence of fields. Field count is fixed per (version, signature)
// and validated on decode by the registry.
type Structure struct {
	Tag    byte
	Fields []any
}

// ErrFieldCount is returned when a decoded Structure's field count
// does not match what the registered transformer expects for its
// signature. The connection must be treated as fatally broken on this
// error (spec §4.4).
type ErrFieldCount struct {
	Tag      byte
	Expected int
	Got      int
}

func (e *ErrFieldCount) Error() string {
	return fmt.Sprintf("structure: tag 0x%02X expects %d fields, got %d", e.Tag, e.Expected, e.Got)
}

// Transformer hydrates a Structure into an application value and
// dehydrates an application value back into a Structure. A
// Transformer may ExtendWith another to override individual functions
// while inheriting the rest. pkg/graphtypes does not use it: its
// element_id field shapes are chosen by a constructor flag.
type Transformer struct {
	Tag            byte
	FieldCount     int
	IsTypeInstance func(v any) bool
	ToStruct       func(v any) (*Structure, error)
	FromStruct     func(s *Structure) (any, error)
}

// ExtendWith returns a copy of t with any non-nil field from patch
// overriding t's own, inheriting the rest. Tag is always taken from
// patch if non-zero, else from t.
func (t Transformer) ExtendWith(patch Transformer) Transformer {
	out := t
	if patch.Tag != 0 {
		out.Tag = patch.Tag
	}
	if patch.FieldCount != 0 {
		out.FieldCount = patch.FieldCount
	}
	if patch.IsTypeInstance != nil {
		out.IsTypeInstance = patch.IsTypeInstance
	}
	if patch.ToStruct != nil {
		out.ToStruct = patch.ToStruct
	}
	if patch.FromStruct != nil {
		out.FromStruct = patch.FromStruct
	}
	return out
}

// Registry holds an ordered list of transformers for dehydration
// (queried by IsTypeInstance, in registration order) and a signature
// map for hydration (queried by Tag, O(1)).
type Registry struct {
	ordered []Transformer
	byTag   map[byte]Transformer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[byte]Transformer)}
}

// Register appends t to the dehydration search order and indexes it
// by tag for hydration. Registering the same tag again replaces the
// previous entry in the tag index but does not remove it from the
// dehydration order; register overrides before building a Packer to
// avoid duplicate order entries.
func (r *Registry) Register(t Transformer) {
	r.ordered = append(r.ordered, t)
	r.byTag[t.Tag] = t
}

// Clone returns a Registry with the same entries, safe to mutate
// independently.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	out.ordered = append([]Transformer(nil), r.ordered...)
	for k, v := range r.byTag {
		out.byTag[k] = v
	}
	return out
}

// Dehydrate finds the first registered transformer (in registration
// order) whose IsTypeInstance reports true for v and converts v into
// a Structure.
func (r *Registry) Dehydrate(v any) (*Structure, bool, error) {
	for _, t := range r.ordered {
		if t.IsTypeInstance != nil && t.IsTypeInstance(v) {
			s, err := t.ToStruct(v)
			return s, true, err
		}
	}
	return nil, false, nil
}

// Hydrate looks up the transformer for s.Tag in O(1) and converts s
// into an application value, after validating the field count.
func (r *Registry) Hydrate(s *Structure) (any, error) {
	t, ok := r.byTag[s.Tag]
	if !ok {
		return nil, fmt.Errorf("structure: no transformer registered for tag 0x%02X", s.Tag)
	}
	if t.FieldCount >= 0 && len(s.Fields) != t.FieldCount {
		return nil, &ErrFieldCount{Tag: s.Tag, Expected: t.FieldCount, Got: len(s.Fields)}
	}
	return t.FromStruct(s)
}

// Transformer returns the registered transformer for tag, if any.
func (r *Registry) Transformer(tag byte) (Transformer, bool) {
	t, ok := r.byTag[tag]
	return t, ok
}
