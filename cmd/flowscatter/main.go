// Command flowscatter is the output-fan-out driver: it reads flow records
// off a transport and distributes each across a fixed number of outputs,
// either by hashing fields selected by a rule or round-robin, retrying
// once against the round-robin fallback before surfacing a send failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/cesnet/nemea-flowmods/internal/audit"
	"github.com/cesnet/nemea-flowmods/internal/fstransport"
	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/internal/runtimeEnv"
	"github.com/cesnet/nemea-flowmods/internal/scatter"
	"github.com/cesnet/nemea-flowmods/internal/telemetry"
	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

func main() { run() }

func run() {
	var (
		flagCount int
		flagRule string
		flagNatsAddress string
		flagSubjectIn string
		flagSubjectOutPrefix string
		flagTelemetryAddr string
		flagAuditDB string
		flagLogLevel string
		flagLogDateTime bool
		flagGops bool
	)
	flag.IntVar(&flagCount, "count", 2, "number of output interfaces")
	flag.StringVar(&flagRule, "rule", "", "scatter rule DSL; empty is pure round-robin")
	flag.StringVar(&flagNatsAddress, "nats-address", "", "NATS server address; empty uses an in-process transport (for tests)")
	flag.StringVar(&flagSubjectIn, "nats-subject-in", "flows.filtered", "NATS subject to receive records from")
	flag.StringVar(&flagSubjectOutPrefix, "nats-subject-out-prefix", "flows.out", "NATS subject prefix; output i publishes to '<prefix>.<i>'")
	flag.StringVar(&flagTelemetryAddr, "telemetry-addr", "", "address to serve the telemetry introspection endpoint on; empty disables it")
	flag.StringVar(&flagAuditDB, "audit-db", "./var/flowscatter-audit.db", "path to the SQLite operational audit log")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "logging level: debug, info, warn, err, crit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "add date/time to log messages")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	flog.SetLogLevel(flagLogLevel)
	flog.SetLogDateTime(flagLogDateTime)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			flog.Fatalf("gops/agent.Listen failed: %s", err)
		}
	}

	if flagCount <= 0 {
		flog.Fatalf("-count must be positive")
	}

	db, err := audit.Open(flagAuditDB)
	if err != nil {
		flog.Fatalf("opening audit log: %s", err)
	}
	defer db.Close()

	schema := defaultFlowSchema()

	var in fstransport.Channel
	outs := make([]fstransport.Sink, flagCount)
	if flagNatsAddress == "" {
		in = fstransport.NewMemory(schema, 256)
		for i := range outs {
			outs[i] = fstransport.NewMemory(schema, 256)
		}
	} else {
		nc, err := fstransport.NewNatsAvro(fstransport.Config{Address: flagNatsAddress, Subject: flagSubjectIn}, schema)
		if err != nil {
			flog.Fatalf("connecting input transport: %s", err)
		}
		in = nc
		for i := range outs {
			subject := fmt.Sprintf("%s.%d", flagSubjectOutPrefix, i)
			no, err := fstransport.NewNatsAvro(fstransport.Config{Address: flagNatsAddress, Subject: subject}, schema)
			if err != nil {
				flog.Fatalf("connecting output transport %d: %s", i, err)
			}
			outs[i] = no
		}
	}
	defer in.Close()
	for _, o := range outs {
		defer o.Close()
	}

	rule, err := scatter.ParseRule(flagRule)
	if err != nil {
		flog.Fatalf("parsing scatter rule: %s", err)
	}
	router, err := scatter.NewRouter(flagCount, rule, schema.Resolve)
	if err != nil {
		flog.Fatalf("building router: %s", err)
	}

	tree := telemetry.NewTree()
	registerFlowScatterTelemetry(tree, router)
	var telemetrySrv interface{ Close() error }
	if flagTelemetryAddr != "" {
		telemetrySrv = telemetry.Serve(flagTelemetryAddr, tree)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	runLoop(ctx, in, outs, router, db)

	if telemetrySrv != nil {
		telemetrySrv.Close()
	}
	_ = db.Log(context.Background(), time.Now(), "flowscatter", audit.KindShutdownClean, "flowscatter exiting")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
}

func defaultFlowSchema() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv6},
			{Name: "DST_IP", Kind: record.KindIPv6},
			{Name: "SRC_PORT", Kind: record.KindU16},
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "PROTOCOL", Kind: record.KindU8},
		}, 1)
}

func runLoop(ctx context.Context, in fstransport.Channel, outs []fstransport.Sink, router *scatter.Router, db *audit.DB) {
	for {
		view, _, ok, err := in.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			flog.Errorf("receiving record: %s", err)
			continue
		}
		if !ok {
			return
		}

		idx := router.OutputIndex(view)
		if err := trySend(ctx, outs, idx, view); err != nil {
			_ = db.Log(ctx, time.Now(), "flowscatter", audit.KindShutdownFatal, err.Error())
			flog.Errorf("sending record: %s", err)
		}
	}
}

// trySend sends view to outs[idx]; if that output is closed, it retries
// once against the next output (round-robin fallback) before surfacing the
// error to the caller.
func trySend(ctx context.Context, outs []fstransport.Sink, idx int, view *record.View) error {
	err := outs[idx].Send(ctx, view)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	fallback := (idx + 1) % len(outs)
	if fallbackErr := outs[fallback].Send(ctx, view); fallbackErr != nil {
		return fmt.Errorf("flowscatter: output %d failed (%w), fallback output %d also failed: %s", idx, err, fallback, fallbackErr)
	}
	return nil
}

func registerFlowScatterTelemetry(tree *telemetry.Tree, router *scatter.Router) {
	_ = tree.Register("flowscatter/total", func() telemetry.Content {
			return telemetry.Scalar(float64(router.Stats().TotalRecords))
	})
	_ = tree.Register("flowscatter/sent", func() telemetry.Content {
			stats := router.Stats()
			d := make(telemetry.Dict, len(stats.SentRecords))
			for i, n := range stats.SentRecords {
				d[strconv.Itoa(i)] = telemetry.Scalar(float64(n))
			}
			return d
	})
}

