package record

import "fmt"

// ErrTypeMismatch is returned when a typed getter is used against a field
// whose declared kind differs from the requested kind.
var ErrTypeMismatch = fmt.Errorf("record: type mismatch")

// View is a schema-indexed view over a single record buffer.
// It is not safe for concurrent use; each receive-loop iteration should
// use its own View (or Reset an owned one) over the freshly received row.
type View struct {
	schema *Schema
	values []Value
	isSet []bool
}

// NewView allocates a View bound to schema with every field absent. Reset
// clears it again for reuse.
func NewView(schema *Schema) *View {
	return &View{
		schema: schema,
		values: make([]Value, schema.Len()),
		isSet: make([]bool, schema.Len()),
	}
}

// Schema returns the schema this view is bound to.
func (v *View) Schema() *Schema { return v.schema }

// Reset rebinds the view to a (possibly new) schema and clears all values,
// so an owned View can be reused for the next record or after a format
// change.
func (v *View) Reset(schema *Schema) {
	if schema != v.schema || cap(v.values) < schema.Len() {
		v.schema = schema
		v.values = make([]Value, schema.Len())
		v.isSet = make([]bool, schema.Len())
		return
	}
	v.values = v.values[:schema.Len()]
	v.isSet = v.isSet[:schema.Len()]
	for i := range v.values {
		v.values[i] = Value{}
		v.isSet[i] = false
	}
}

// Get reads the typed value at id. The second return is false if the
// field is absent on this record.
func (v *View) Get(id FieldID) (Value, bool) {
	if id < 0 || int(id) >= len(v.values) || !v.isSet[id] {
		return Value{}, false
	}
	return v.values[id], true
}

// GetKind reads the typed value at id, failing with ErrTypeMismatch if its
// kind does not equal want.
func (v *View) GetKind(id FieldID, want Kind) (Value, bool, error) {
	val, ok := v.Get(id)
	if !ok {
		return Value{}, false, nil
	}
	if val.Kind() != want {
		return Value{}, true, fmt.Errorf("%w: field %d is %s, want %s", ErrTypeMismatch, id, val.Kind(), want)
	}
	return val, true, nil
}

// Set writes a typed value at id. Fails with ErrTypeMismatch if value's
// kind does not match the field's declared kind.
func (v *View) Set(id FieldID, value Value) error {
	f, ok := v.schema.Field(id)
	if !ok {
		return fmt.Errorf("%w: field id %d", ErrFieldUnknown, id)
	}
	if f.Kind != value.Kind() {
		return fmt.Errorf("%w: field %q declared %s, got %s", ErrTypeMismatch, f.Name, f.Kind, value.Kind())
	}
	v.values[id] = value
	v.isSet[id] = true
	return nil
}

// Clear marks a field absent without deallocating the view.
func (v *View) Clear(id FieldID) {
	if id >= 0 && int(id) < len(v.isSet) {
		v.isSet[id] = false
		v.values[id] = Value{}
	}
}
