// Package telemetry implements the in-process introspection tree described
// by the original FUSE-mounted telemetry filesystem: a tree of named
// read-only values, each produced on demand by a callback, with
// cross-sibling aggregation and an HTTP surface standing in for the mount.
package telemetry

import "fmt"

// Content is the value type returned by a tree leaf: a bare number, a
// number with a unit string, or a nested dictionary of Content. This is a
// closed, compile-time-known set, so Content is an interface implemented by exactly three
// types rather than an open plugin hierarchy.
type Content interface {
	isContent()
	String() string
}

// Scalar is a bare numeric reading.
type Scalar float64

func (Scalar) isContent() {}
func (s Scalar) String() string { return fmt.Sprintf("%g", float64(s)) }

// ScalarWithUnit pairs a numeric reading with its unit (e.g. "bytes/s").
type ScalarWithUnit struct {
	Value float64
	Unit string
}

func (ScalarWithUnit) isContent() {}
func (s ScalarWithUnit) String() string {
	return fmt.Sprintf("%g %s", s.Value, s.Unit)
}

// Dict is a nested group of named Content, used both for genuinely
// structured leaves and for directory listings synthesized from a
// subtree's children.
type Dict map[string]Content

func (Dict) isContent() {}
func (d Dict) String() string {
	return fmt.Sprintf("<dict with %d entries>", len(d))
}
