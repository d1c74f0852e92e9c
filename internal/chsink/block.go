// Package chsink implements the ClickHouse insertion pipeline:
// a pool of reusable row blocks filled by the receive loop and drained by a
// pool of insertion workers, ported from the original clickhouse module's
// Manager/Inserter split (SyncStack empty_blocks / SyncQueue filled_blocks).
package chsink

// Block is a reusable buffer of rows destined for one
// PrepareBatch/Send cycle. Each row is ordered to match the sink's
// configured column list.
type Block struct {
	rows [][]any
}

func newBlock(capRows int) *Block {
	return &Block{rows: make([][]any, 0, capRows)}
}

// Len reports how many rows are currently buffered.
func (b *Block) Len() int { return len(b.rows) }

// Full reports whether the block has reached its configured row capacity.
func (b *Block) Full() bool { return len(b.rows) >= cap(b.rows) }

// Append adds a row, which must already be in column order.
func (b *Block) Append(row []any) { b.rows = append(b.rows, row) }

// Rows exposes the buffered rows for the inserter to send.
func (b *Block) Rows() [][]any { return b.rows }

func (b *Block) reset() { b.rows = b.rows[:0] }

// BlockPool recycles a fixed set of Blocks between the fill side
// (Sink.ProcessRecord) and the drain side (the inserter workers): an "empty"
// pool of ready-to-fill blocks and a "filled" queue of blocks awaiting
// insertion. The original's SyncStack/SyncQueue pair is collapsed onto
// buffered channels, which give the same bounded-pool behavior without a
// hand-rolled mutex/condvar.
type BlockPool struct {
	empty chan *Block
	filled chan *Block
}

// NewBlockPool preallocates numBlocks blocks, each able to hold rowsPerBlock
// rows, and seeds the empty pool with all of them.
func NewBlockPool(numBlocks, rowsPerBlock int) *BlockPool {
	p := &BlockPool{
		empty: make(chan *Block, numBlocks),
		filled: make(chan *Block, numBlocks),
	}
	for i := 0; i < numBlocks; i++ {
		p.empty <- newBlock(rowsPerBlock)
	}
	return p
}

// Acquire blocks until an empty block is available.
func (p *BlockPool) Acquire() *Block { return <-p.empty }

// Submit hands a filled block to the drain side.
func (p *BlockPool) Submit(b *Block) { p.filled <- b }

// Take blocks until a filled block is ready, or ok is false if stop fires
// first.
func (p *BlockPool) Take(stop <-chan struct{}) (b *Block, ok bool) {
	select {
	case b = <-p.filled:
		return b, true
	case <-stop:
		return nil, false
	}
}

// TakeNonBlocking returns a filled block if one is already queued.
func (p *BlockPool) TakeNonBlocking() (*Block, bool) {
	select {
	case b := <-p.filled:
		return b, true
	default:
		return nil, false
	}
}

// Release clears and returns a block to the empty pool for reuse.
func (p *BlockPool) Release(b *Block) {
	b.reset()
	p.empty <- b
}
