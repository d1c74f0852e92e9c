package chsink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

// Config describes one ClickHouse sink instance.
type Config struct {
	DSN string
	Table string
	Columns []ColumnSpec
	Workers int
	BlockRows int
	Blocks int
	MaxInsertDelay time.Duration
}

// Stats exposes the sink's telemetry counters.
type Stats struct {
	RowsBuffered uint64
	BlocksSent uint64
	RowsInserted uint64
	InsertErrors uint64
}

// Sink buffers incoming records into Blocks and hands full (or stale)
// blocks to a pool of insertion workers, mirroring the original Manager/
// Inserter split.
type Sink struct {
	cfg Config
	pool *BlockPool
	adapter *Adapter

	mu sync.Mutex
	current *Block
	lastSubmit time.Time

	stop chan struct{}
	wg sync.WaitGroup
	workers []*worker
	limiter *rate.Limiter

	statsMu sync.Mutex
	stats Stats
}

// NewSink builds a Sink bound to schema's current generation. Call Rebind
// on every subsequent format change.
func NewSink(cfg Config, schema *record.Schema) (*Sink, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BlockRows <= 0 {
		cfg.BlockRows = 8192
	}
	if cfg.Blocks <= 0 {
		cfg.Blocks = 2 * cfg.Workers
	}
	if cfg.MaxInsertDelay <= 0 {
		cfg.MaxInsertDelay = 500 * time.Millisecond
	}

	adapter, err := NewAdapter(cfg.Columns, schema)
	if err != nil {
		return nil, err
	}

	pool := NewBlockPool(cfg.Blocks, cfg.BlockRows)
	s := &Sink{
		cfg: cfg,
		pool: pool,
		adapter: adapter,
		current: pool.Acquire(),
		lastSubmit: time.Now(),
		stop: make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	return s, nil
}

// Rebind re-resolves the column/field mapping against a new schema
// generation after a format change.
func (s *Sink) Rebind(schema *record.Schema) error {
	adapter, err := NewAdapter(s.cfg.Columns, schema)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.adapter = adapter
	s.mu.Unlock()
	return nil
}

// Start launches cfg.Workers insertion workers against conn.
func (s *Sink) Start(conn chClient) {
	insertSQL := buildInsertSQL(s.cfg.Table, s.adapter.ColumnNames())
	for i := 0; i < s.cfg.Workers; i++ {
		w := &worker{id: i, conn: conn, insertSQL: insertSQL, sink: s}
		s.workers = append(s.workers, w)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run(s.stop)
		}()
	}
}

// Stop signals workers to drain and exit, flushing any partially filled
// current block first.
func (s *Sink) Stop() {
	s.mu.Lock()
	if s.current.Len() > 0 {
		s.pool.Submit(s.current)
		s.current = s.pool.Acquire()
	}
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

// ProcessRecord converts view into a row and appends it to the block
// currently being filled, submitting it to the insertion queue once it is
// full or older than MaxInsertDelay.
func (s *Sink) ProcessRecord(view *record.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.adapter.Row(view)
	if err != nil {
		return err
	}
	s.current.Append(row)
	s.addStat(func(st *Stats) { st.RowsBuffered++ })

	if s.current.Full() || time.Since(s.lastSubmit) >= s.cfg.MaxInsertDelay {
		s.pool.Submit(s.current)
		s.current = s.pool.Acquire()
		s.lastSubmit = time.Now()
	}
	return nil
}

func (s *Sink) addStat(f func(*Stats)) {
	s.statsMu.Lock()
	f(&s.stats)
	s.statsMu.Unlock()
}

// Stats returns a snapshot of the sink's counters.
func (s *Sink) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func buildInsertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
}

// chClient is the slice of the ClickHouse driver's connection the worker
// needs: prepare a batch insert and send it. Abstracted so tests can
// exercise the block-pool/adapter wiring without a live ClickHouse server.
type chClient interface {
	PrepareInsert(ctx context.Context, sql string) (chBatch, error)
}

// chBatch is the slice of driver.Batch the worker needs.
type chBatch interface {
	Append(row ...any) error
	Send() error
}

type worker struct {
	id int
	conn chClient
	insertSQL string
	sink *Sink
}

func (w *worker) run(stop <-chan struct{}) {
	for {
		b, ok := w.sink.pool.Take(stop)
		if !ok {
			// Drain anything already queued before exiting.
			for {
				b, ok := w.sink.pool.TakeNonBlocking()
				if !ok {
					return
				}
				w.insert(b, stop)
			}
		}
		w.insert(b, stop)
	}
}

// insert sends b's rows in one batch, retrying on failure paced by
// w.sink.limiter until it succeeds or stop fires, at which point the block
// is dropped and logged rather than retried forever. Every failed attempt
// increments InsertErrors.
func (w *worker) insert(b *Block, stop <-chan struct{}) {
	defer w.sink.pool.Release(b)

	rows := b.Rows()
	if len(rows) == 0 {
		return
	}

	for {
		if err := w.attemptInsert(rows); err == nil {
			w.sink.addStat(func(st *Stats) {
					st.BlocksSent++
					st.RowsInserted += uint64(len(rows))
			})
			return
		}

		w.sink.addStat(func(st *Stats) { st.InsertErrors++ })
		_ = w.sink.limiter.Wait(context.Background())
		select {
		case <-stop:
			flog.Errorf("chsink: worker %d: dropping block after stop requested with insert still failing", w.id)
			return
		default:
		}
	}
}

func (w *worker) attemptInsert(rows [][]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareInsert(ctx, w.insertSQL)
	if err != nil {
		flog.Errorf("chsink: worker %d: preparing batch: %v", w.id, err)
		return err
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			flog.Errorf("chsink: worker %d: appending row: %v", w.id, err)
			return err
		}
	}
	if err := batch.Send(); err != nil {
		flog.Errorf("chsink: worker %d: sending batch: %v", w.id, err)
		return err
	}
	return nil
}
