package chsink

import (
	"fmt"
	"net"
	"time"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// ColumnSpec binds one ClickHouse column name to the record field it is
// populated from.
type ColumnSpec struct {
	ColumnName string
	FieldName string
}

type compiledColumn struct {
	name string
	fieldID record.FieldID
	kind record.Kind
}

// Adapter converts record.Views into ClickHouse-ready rows, resolving
// column field names against a schema once at construction (and again on
// every format change).
type Adapter struct {
	columns []compiledColumn
}

// NewAdapter resolves specs against schema.
func NewAdapter(specs []ColumnSpec, schema *record.Schema) (*Adapter, error) {
	cols := make([]compiledColumn, len(specs))
	for i, s := range specs {
		id, err := schema.Resolve(s.FieldName)
		if err != nil {
			return nil, fmt.Errorf("chsink: column %q: %w", s.ColumnName, err)
		}
		f, _ := schema.Field(id)
		cols[i] = compiledColumn{name: s.ColumnName, fieldID: id, kind: f.Kind}
	}
	return &Adapter{columns: cols}, nil
}

// ColumnNames returns the configured column names in order, for building
// the INSERT statement's column list.
func (a *Adapter) ColumnNames() []string {
	out := make([]string, len(a.columns))
	for i, c := range a.columns {
		out[i] = c.name
	}
	return out
}

// Row converts view into a column-ordered row. A field absent on this
// record (including across a format change that dropped it) is inserted as
// the column type's zero value, accepting a best-effort record rather than
// dropping the whole row.
func (a *Adapter) Row(view *record.View) ([]any, error) {
	row := make([]any, len(a.columns))
	for i, c := range a.columns {
		v, ok := view.Get(c.fieldID)
		if !ok {
			row[i] = zeroColumnValue(c.kind)
			continue
		}
		cv, err := toColumnValue(v)
		if err != nil {
			return nil, fmt.Errorf("chsink: column %q: %w", c.name, err)
		}
		row[i] = cv
	}
	return row, nil
}

func toColumnValue(v record.Value) (any, error) {
	switch v.Kind() {
	case record.KindI8:
		x, _ := v.Int()
		return int8(x), nil
	case record.KindI16:
		x, _ := v.Int()
		return int16(x), nil
	case record.KindI32:
		x, _ := v.Int()
		return int32(x), nil
	case record.KindI64:
		x, _ := v.Int()
		return x, nil
	case record.KindU8, record.KindChar:
		x, _ := v.Uint()
		return uint8(x), nil
	case record.KindU16:
		x, _ := v.Uint()
		return uint16(x), nil
	case record.KindU32:
		x, _ := v.Uint()
		return uint32(x), nil
	case record.KindU64:
		x, _ := v.Uint()
		return x, nil
	case record.KindF32:
		x, _ := v.Float()
		return float32(x), nil
	case record.KindF64:
		x, _ := v.Float()
		return x, nil
	case record.KindTime:
		ns, _ := v.TimeNs()
		return time.Unix(0, int64(ns)).UTC(), nil
	case record.KindIPv4, record.KindIPv6:
		addr, _, _ := v.IP()
		return net.IP(addr.AsSlice()), nil
	case record.KindMAC:
		mac, _ := v.MAC()
		return append([]byte(nil), mac[:]...), nil
	case record.KindString:
		s, _ := v.Str()
		return s, nil
	case record.KindBytes:
		b, _ := v.Bytes()
		return b, nil
	case record.KindArray:
		vals, elemKind, _ := v.Array()
		out := make([]any, len(vals))
		for i, e := range vals {
			cv, err := toColumnValue(e)
			if err != nil {
				return nil, fmt.Errorf("array element %d (%s): %w", i, elemKind, err)
			}
			out[i] = cv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

func zeroColumnValue(k record.Kind) any {
	switch k {
	case record.KindI8:
		return int8(0)
	case record.KindI16:
		return int16(0)
	case record.KindI32:
		return int32(0)
	case record.KindI64:
		return int64(0)
	case record.KindU8, record.KindChar:
		return uint8(0)
	case record.KindU16:
		return uint16(0)
	case record.KindU32:
		return uint32(0)
	case record.KindU64:
		return uint64(0)
	case record.KindF32:
		return float32(0)
	case record.KindF64:
		return float64(0)
	case record.KindTime:
		return time.Unix(0, 0).UTC()
	case record.KindIPv4:
		return net.IPv4zero
	case record.KindIPv6:
		return net.IPv6zero
	case record.KindMAC:
		return make([]byte, 6)
	case record.KindString:
		return ""
	case record.KindBytes:
		return []byte{}
	case record.KindArray:
		return []any{}
	default:
		return nil
	}
}
