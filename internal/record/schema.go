package record

import "fmt"

// FieldID is a stable id valid until the next format change. -1 denotes an unresolved/invalid id.
type FieldID int32

const InvalidFieldID FieldID = -1

// ErrFieldUnknown is returned by Resolve for a name absent from the schema.
var ErrFieldUnknown = fmt.Errorf("record: field unknown")

// Field describes one column of a Schema.
type Field struct {
	Name string
	Kind Kind
	ElemKind Kind // meaningful only when Kind == KindArray
}

// Schema is the ordered list of (name, kind) pairs describing a record's
// columns. Every record on a channel is validated against the
// current schema; a channel emits a format change when its schema changes.
type Schema struct {
	fields []Field
	index map[string]FieldID
	generation uint64
}

// NewSchema builds a Schema from an ordered field list. generation should
// be bumped by the caller (typically the transport adapter) on every
// format-change event so that stale FieldIDs can be detected.
func NewSchema(fields []Field, generation uint64) *Schema {
	idx := make(map[string]FieldID, len(fields))
	for i, f := range fields {
		idx[f.Name] = FieldID(i)
	}
	return &Schema{fields: append([]Field(nil), fields...), index: idx, generation: generation}
}

func (s *Schema) Generation() uint64 { return s.generation }

func (s *Schema) Len() int { return len(s.fields) }

func (s *Schema) Field(id FieldID) (Field, bool) {
	if id < 0 || int(id) >= len(s.fields) {
		return Field{}, false
	}
	return s.fields[id], true
}

// Resolve maps a field name to its stable id. Fails with ErrFieldUnknown
// if name is absent from the schema.
func (s *Schema) Resolve(name string) (FieldID, error) {
	id, ok := s.index[name]
	if !ok {
		return InvalidFieldID, fmt.Errorf("%w: %q", ErrFieldUnknown, name)
	}
	return id, nil
}

// ResolveAll resolves a batch of field names, typically used by a driver
// to rebuild its cached FieldIDs after a format change. It fails on the
// first unresolved name.
func ResolveAll(s *Schema, names []string) (map[string]FieldID, error) {
	out := make(map[string]FieldID, len(names))
	for _, n := range names {
		id, err := s.Resolve(n)
		if err != nil {
			return nil, err
		}
		out[n] = id
	}
	return out, nil
}
