package config

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

// Fingerprint content-hashes a config/rule-list file so the reload watcher
// can skip a reparse when nothing actually changed.
func Fingerprint(raw []byte) [32]byte {
	return blake2b.Sum256(raw)
}

// ReloadWatcher periodically re-sources a config/rule file and invokes
// onChange with its fresh bytes whenever its fingerprint differs from the
// last observed one. Built on gocron for scheduling the periodic
// background check.
type ReloadWatcher struct {
	scheduler gocron.Scheduler
	uri string
	interval time.Duration
	last [32]byte
	onChange func([]byte) error
}

// NewReloadWatcher builds (but does not start) a watcher for uri, polling
// every interval.
func NewReloadWatcher(uri string, interval time.Duration, onChange func([]byte) error) (*ReloadWatcher, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &ReloadWatcher{scheduler: sched, uri: uri, interval: interval, onChange: onChange}, nil
}

// Start installs the periodic reload job and starts the scheduler. The
// first tick fires immediately so the initial load goes through the same
// code path as a reload.
func (w *ReloadWatcher) Start(ctx context.Context) error {
	w.tick(ctx)

	_, err := w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.tick(ctx) }),
	)
	if err != nil {
		return err
	}
	w.scheduler.Start()
	return nil
}

func (w *ReloadWatcher) tick(ctx context.Context) {
	raw, err := ReadSource(ctx, w.uri)
	if err != nil {
		flog.Errorf("config: reload watcher: reading %q: %v", w.uri, err)
		return
	}

	fp := Fingerprint(raw)
	if fp == w.last {
		return
	}

	if err := w.onChange(raw); err != nil {
		flog.Errorf("config: reload watcher: rejecting update to %q: %v", w.uri, err)
		return
	}
	w.last = fp
	flog.Infof("config: reload watcher: applied update to %q (fingerprint %x)", w.uri, fp[:8])
}

// Stop shuts the scheduler down, blocking until its running job (if any)
// finishes.
func (w *ReloadWatcher) Stop() error {
	return w.scheduler.Shutdown()
}
