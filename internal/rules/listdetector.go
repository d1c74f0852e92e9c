package rules

import (
	"crypto/subtle"
	"fmt"
	"sync/atomic"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// Mode selects how a matched rule set translates into a pass/drop verdict.
type Mode uint8

const (
	// Whitelist: a record passes only if it matches at least one rule.
	Whitelist Mode = iota
	// Blacklist: a record passes only if it matches no rule.
	Blacklist
)

func (m Mode) String() string {
	if m == Whitelist {
		return "whitelist"
	}
	return "blacklist"
}

// ListDetector wraps a RulesEngine with whitelist/blacklist semantics and
// supports lock-free hot swap of the compiled engine.
type ListDetector struct {
	mode Mode
	engine atomic.Pointer[RulesEngine]

	passed atomic.Uint64
	dropped atomic.Uint64
}

// NewListDetector builds a driver around an already-compiled engine.
func NewListDetector(mode Mode, engine *RulesEngine) *ListDetector {
	d := &ListDetector{mode: mode}
	d.engine.Store(engine)
	return d
}

// Swap installs a newly compiled engine, atomically, for subsequent Evaluate
// calls. Safe to call concurrently with Evaluate.
func (d *ListDetector) Swap(engine *RulesEngine) {
	d.engine.Store(engine)
}

// Evaluate reports whether view should pass, per mode duality:
// whitelist passes iff at least one rule matched; blacklist passes iff none
// did.
func (d *ListDetector) Evaluate(view *record.View) bool {
	engine := d.engine.Load()
	if engine == nil {
		return d.mode == Blacklist
	}

	matched := !engine.Match(view).IsEmpty()
	pass := matched == (d.mode == Whitelist)

	if pass {
		d.passed.Add(1)
	} else {
		d.dropped.Add(1)
	}
	return pass
}

// Stats reports pass/drop counters for telemetry.
func (d *ListDetector) Stats() (passed, dropped uint64) {
	return d.passed.Load(), d.dropped.Load()
}

// Fingerprint is a 32-byte content digest of a rule file. The reload
// watcher in internal/config compares its own config.Fingerprint digests
// and does not use this type.
type Fingerprint [32]byte

// Equal performs a constant-time comparison, as is usual for digest
// comparisons.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return subtle.ConstantTimeCompare(f[:], other[:]) == 1
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:8])
}
