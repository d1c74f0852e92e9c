package fstransport

import (
	"context"
	"errors"
	"sync"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// ErrClosed is returned by Memory operations performed after Close.
var ErrClosed = errors.New("fstransport: channel closed")

// Memory is an in-process, in-memory transport implementation used by
// tests and by drivers chained together within a single process. It is
// safe for one writer and one reader.
type Memory struct {
	schema *record.Schema
	ch chan *record.View
	mu sync.Mutex
	closed bool

	lastGen uint64
	seenFirstGen bool
}

// NewMemory builds a Memory channel bound to schema with the given buffer
// depth.
func NewMemory(schema *record.Schema, depth int) *Memory {
	return &Memory{schema: schema, ch: make(chan *record.View, depth)}
}

func (m *Memory) Schema() *record.Schema { return m.schema }

// Push enqueues a view for Recv to pick up. Blocks if the buffer is full.
func (m *Memory) Push(ctx context.Context, view *record.View) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	select {
	case m.ch <- view:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Recv(ctx context.Context) (*record.View, bool, bool, error) {
	select {
	case v, ok := <-m.ch:
		if !ok {
			return nil, false, false, nil
		}
		changed := !m.seenFirstGen || v.Schema().Generation() != m.lastGen
		m.lastGen = v.Schema().Generation()
		m.seenFirstGen = true
		return v, changed, true, nil
	case <-ctx.Done():
		return nil, false, false, ctx.Err()
	}
}

// Send implements Sink by pushing onto the same channel (used when a
// Memory instance is shared between a producer driver and a consumer
// driver in tests).
func (m *Memory) Send(ctx context.Context, view *record.View) error {
	return m.Push(ctx, view)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.ch)
	return nil
}
