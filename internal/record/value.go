// Package record implements the schema-indexed typed-record view:
// resolving field names to stable ids and reading/writing typed values
// without type-dispatch leaking into every downstream core.
package record

import (
	"fmt"
	"math"
	"net/netip"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindChar
	KindF32
	KindF64
	KindIPv4
	KindIPv6
	KindMAC
	KindTime // nanoseconds since Unix epoch, stored as u64
	KindString
	KindBytes
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindChar:
		return "char"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindIPv4:
		return "ipv4"
	case KindIPv6:
		return "ipv6"
	case KindMAC:
		return "mac"
	case KindTime:
		return "time_ns"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a tagged union over the variants a record field can hold.
// Numeric kinds share the i/u/f fields; only the field matching Kind is
// meaningful.
type Value struct {
	kind Kind
	elemKind Kind // meaningful only when kind == KindArray
	i int64
	u uint64
	f float64
	addr netip.Addr
	prefixLen uint8
	mac [6]byte
	s string
	b []byte
	arr []Value
}

func (v Value) Kind() Kind { return v.kind }

func NewI8(x int8) Value { return Value{kind: KindI8, i: int64(x)} }
func NewI16(x int16) Value { return Value{kind: KindI16, i: int64(x)} }
func NewI32(x int32) Value { return Value{kind: KindI32, i: int64(x)} }
func NewI64(x int64) Value { return Value{kind: KindI64, i: x} }
func NewU8(x uint8) Value { return Value{kind: KindU8, u: uint64(x)} }
func NewU16(x uint16) Value { return Value{kind: KindU16, u: uint64(x)} }
func NewU32(x uint32) Value { return Value{kind: KindU32, u: uint64(x)} }
func NewU64(x uint64) Value { return Value{kind: KindU64, u: x} }
func NewChar(x byte) Value { return Value{kind: KindChar, u: uint64(x)} }
func NewF32(x float32) Value { return Value{kind: KindF32, f: float64(x)} }
func NewF64(x float64) Value { return Value{kind: KindF64, f: x} }
func NewTime(ns uint64) Value { return Value{kind: KindTime, u: ns} }
func NewString(s string) Value { return Value{kind: KindString, s: s} }
func NewBytes(b []byte) Value { return Value{kind: KindBytes, b: b} }

func NewIPv4(addr netip.Addr, prefixLen uint8) Value {
	return Value{kind: KindIPv4, addr: addr, prefixLen: prefixLen}
}

func NewIPv6(addr netip.Addr, prefixLen uint8) Value {
	return Value{kind: KindIPv6, addr: addr, prefixLen: prefixLen}
}

func NewMAC(mac [6]byte) Value { return Value{kind: KindMAC, mac: mac} }

func NewArray(elemKind Kind, vals []Value) Value {
	return Value{kind: KindArray, elemKind: elemKind, arr: vals}
}

// ErrKindMismatch is returned by the typed accessors when a field's
// declared kind doesn't match the accessor called on it.
var ErrKindMismatch = fmt.Errorf("record: value kind mismatch")

func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindI8, KindI16, KindI32, KindI64:
		return v.i, nil
	default:
		return 0, ErrKindMismatch
	}
}

func (v Value) Uint() (uint64, error) {
	switch v.kind {
	case KindU8, KindU16, KindU32, KindU64, KindChar:
		return v.u, nil
	default:
		return 0, ErrKindMismatch
	}
}

func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindF32, KindF64:
		return v.f, nil
	default:
		return 0, ErrKindMismatch
	}
}

func (v Value) TimeNs() (uint64, error) {
	if v.kind != KindTime {
		return 0, ErrKindMismatch
	}
	return v.u, nil
}

func (v Value) IP() (netip.Addr, uint8, error) {
	if v.kind != KindIPv4 && v.kind != KindIPv6 {
		return netip.Addr{}, 0, ErrKindMismatch
	}
	return v.addr, v.prefixLen, nil
}

func (v Value) MAC() ([6]byte, error) {
	if v.kind != KindMAC {
		return [6]byte{}, ErrKindMismatch
	}
	return v.mac, nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBytes:
		return string(v.b)
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", ErrKindMismatch
	}
	return v.s, nil
}

func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, ErrKindMismatch
	}
	return v.b, nil
}

func (v Value) Array() ([]Value, Kind, error) {
	if v.kind != KindArray {
		return nil, KindInvalid, ErrKindMismatch
	}
	return v.arr, v.elemKind, nil
}

// Bits returns a canonical byte representation of the value, used by
// FlowScatter's hash input and by the rule engine's string/numeric
// matchers. Numeric kinds are encoded big-endian at their natural width;
// IP addresses use their packed 4- or 16-byte form; strings/bytes are
// returned as-is.
func (v Value) Bits() []byte {
	switch v.kind {
	case KindI8, KindU8, KindChar:
		if v.kind == KindI8 {
			return []byte{byte(v.i)}
		}
		return []byte{byte(v.u)}
	case KindI16, KindU16:
		x := uint16(v.u)
		if v.kind == KindI16 {
			x = uint16(v.i)
		}
		return []byte{byte(x >> 8), byte(x)}
	case KindI32, KindU32:
		x := uint32(v.u)
		if v.kind == KindI32 {
			x = uint32(v.i)
		}
		return be32(x)
	case KindI64, KindU64:
		x := v.u
		if v.kind == KindI64 {
			x = uint64(v.i)
		}
		return be64(x)
	case KindF32:
		return be32(math.Float32bits(float32(v.f)))
	case KindF64:
		return be64(math.Float64bits(v.f))
	case KindTime:
		return be64(v.u)
	case KindIPv4, KindIPv6:
		b := v.addr.AsSlice()
		return b
	case KindMAC:
		return append([]byte(nil), v.mac[:]...)
	case KindString:
		return []byte(v.s)
	case KindBytes:
		return v.b
	default:
		return nil
	}
}

func be32(x uint32) []byte {
	return []byte{byte(x >> 24), byte(x >> 16), byte(x >> 8), byte(x)}
}

func be64(x uint64) []byte {
	return []byte{
		byte(x >> 56), byte(x >> 48), byte(x >> 40), byte(x >> 32),
		byte(x >> 24), byte(x >> 16), byte(x >> 8), byte(x),
	}
}
