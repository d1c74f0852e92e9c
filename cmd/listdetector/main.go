// Command listdetector is the whitelist/blacklist driver: it
// evaluates every incoming record against a hot-reloadable CSV rule list
// and forwards only the records the configured mode lets through.
package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/cesnet/nemea-flowmods/internal/audit"
	"github.com/cesnet/nemea-flowmods/internal/config"
	"github.com/cesnet/nemea-flowmods/internal/fstransport"
	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/internal/rules"
	"github.com/cesnet/nemea-flowmods/internal/runtimeEnv"
	"github.com/cesnet/nemea-flowmods/internal/telemetry"
	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

func main() { run() }

func run() {
	var (
		flagMode string
		flagRuleFile string
		flagCheckInterval time.Duration
		flagNatsAddress string
		flagSubjectIn string
		flagSubjectOut string
		flagTelemetryAddr string
		flagAuditDB string
		flagLogLevel string
		flagLogDateTime bool
		flagGops bool
	)
	flag.StringVar(&flagMode, "mode", "whitelist", "whitelist or blacklist")
	flag.StringVar(&flagRuleFile, "rules", "", "path or s3:// URI to the rule-list CSV")
	flag.DurationVar(&flagCheckInterval, "check-interval", 30*time.Second, "rule-file reload poll interval")
	flag.StringVar(&flagNatsAddress, "nats-address", "", "NATS server address; empty uses an in-process transport (for tests)")
	flag.StringVar(&flagSubjectIn, "nats-subject-in", "flows.deduped", "NATS subject to receive records from")
	flag.StringVar(&flagSubjectOut, "nats-subject-out", "flows.filtered", "NATS subject to publish accepted records to")
	flag.StringVar(&flagTelemetryAddr, "telemetry-addr", "", "address to serve the telemetry introspection endpoint on; empty disables it")
	flag.StringVar(&flagAuditDB, "audit-db", "./var/listdetector-audit.db", "path to the SQLite operational audit log")
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

	if flagRuleFile == "" {
		flog.Fatalf("-rules is required")
	}

	mode := rules.Whitelist
	if flagMode == "blacklist" {
		mode = rules.Blacklist
	} else if flagMode != "whitelist" {
		flog.Fatalf("invalid -mode %q: must be whitelist or blacklist", flagMode)
	}

	db, err := audit.Open(flagAuditDB)
	if err != nil {
		flog.Fatalf("opening audit log: %s", err)
	}
	defer db.Close()

	schema := defaultFlowSchema()

	var in fstransport.Channel
	var out fstransport.Sink
	if flagNatsAddress == "" {
		mem := fstransport.NewMemory(schema, 256)
		in, out = mem, mem
	} else {
		nc, err := fstransport.NewNatsAvro(fstransport.Config{Address: flagNatsAddress, Subject: flagSubjectIn}, schema)
		if err != nil {
			flog.Fatalf("connecting input transport: %s", err)
		}
		no, err := fstransport.NewNatsAvro(fstransport.Config{Address: flagNatsAddress, Subject: flagSubjectOut}, schema)
		if err != nil {
			flog.Fatalf("connecting output transport: %s", err)
		}
		in, out = nc, no
	}
	defer in.Close()
	defer out.Close()

	detector := rules.NewListDetector(mode, nil)

	applyRules := func(raw []byte) error {
		rs, err := config.ParseRuleCSV(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		engine, err := rules.NewEngine(rs, in.Schema().Resolve)
		if err != nil {
			return err
		}
		detector.Swap(engine)
		return nil
	}

	watcher, err := config.NewReloadWatcher(flagRuleFile, flagCheckInterval, func(raw []byte) error {
			if err := applyRules(raw); err != nil {
				return err
			}
			_ = db.Log(context.Background(), time.Now(), "listdetector", audit.KindRuleReload, "rule list reloaded from "+flagRuleFile)
			return nil
	})
	if err != nil {
		flog.Fatalf("building reload watcher: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := watcher.Start(ctx); err != nil {
		flog.Fatalf("starting reload watcher: %s", err)
	}

	tree := telemetry.NewTree()
	registerListDetectorTelemetry(tree, detector)
	var telemetrySrv interface{ Close() error }
	if flagTelemetryAddr != "" {
		telemetrySrv = telemetry.Serve(flagTelemetryAddr, tree)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	runLoop(ctx, in, out, detector)

	_ = watcher.Stop()
	if telemetrySrv != nil {
		telemetrySrv.Close()
	}
	_ = db.Log(context.Background(), time.Now(), "listdetector", audit.KindShutdownClean, "listdetector exiting")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
}

func defaultFlowSchema() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv6},
			{Name: "DST_IP", Kind: record.KindIPv6},
			{Name: "SRC_PORT", Kind: record.KindU16},
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "PROTOCOL", Kind: record.KindU8},
			{Name: "DNS_NAME", Kind: record.KindString},
		}, 1)
}

func runLoop(ctx context.Context, in fstransport.Channel, out fstransport.Sink, detector *rules.ListDetector) {
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

		if !detector.Evaluate(view) {
			continue
		}
		if err := out.Send(ctx, view); err != nil {
			flog.Errorf("sending record: %s", err)
		}
	}
}

func registerListDetectorTelemetry(tree *telemetry.Tree, detector *rules.ListDetector) {
	_ = tree.Register("listdetector/passed", func() telemetry.Content {
			passed, _ := detector.Stats()
			return telemetry.Scalar(float64(passed))
	})
	_ = tree.Register("listdetector/dropped", func() telemetry.Content {
			_, dropped := detector.Stats()
			return telemetry.Scalar(float64(dropped))
	})
}
