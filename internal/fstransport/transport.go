// Package fstransport implements the record-transport abstraction shared
// by all four drivers: a receive loop reads (schema, view)
// pairs off a Channel, reacting to format-change events by rebuilding its
// cached FieldIDs before resuming.
package fstransport

import (
	"context"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// Channel is the receive side of a record transport. Recv blocks until the
// next record is available, ctx is canceled, or the channel is closed
// (io.EOF-equivalent via ok=false).
type Channel interface {
	// Recv returns the next record's view, bound to the channel's current
	// schema. changed is true the first time a given schema generation is
	// seen by this call so the caller can re-resolve its cached FieldIDs.
	Recv(ctx context.Context) (view *record.View, changed bool, ok bool, err error)
	Schema() *record.Schema
	Close() error
}

// Sink is the send side of a record transport.
type Sink interface {
	Send(ctx context.Context, view *record.View) error
	Close() error
}
