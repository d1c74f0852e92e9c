// Command chsink is the ClickHouse sink driver: it reads flow records off
// a transport, converts each into a column-ordered row via a configured
// column mapping, and hands filled row blocks to a pool of insertion
// workers against a live ClickHouse table.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/cesnet/nemea-flowmods/internal/audit"
	"github.com/cesnet/nemea-flowmods/internal/chsink"
	"github.com/cesnet/nemea-flowmods/internal/config"
	"github.com/cesnet/nemea-flowmods/internal/fstransport"
	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/internal/runtimeEnv"
	"github.com/cesnet/nemea-flowmods/internal/telemetry"
	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

func main() { run() }

func run() {
	var (
		flagConfigPath string
		flagNatsAddress string
		flagSubjectIn string
		flagTelemetryAddr string
		flagAuditDB string
		flagLogLevel string
		flagLogDateTime bool
		flagGops bool
	)
	flag.StringVar(&flagConfigPath, "config", "", "path or s3:// URI to the sink's YAML config")
	flag.StringVar(&flagNatsAddress, "nats-address", "", "NATS server address; empty uses an in-process transport (for tests)")
	flag.StringVar(&flagSubjectIn, "nats-subject-in", "flows.filtered", "NATS subject to receive records from")
	flag.StringVar(&flagTelemetryAddr, "telemetry-addr", "", "address to serve the telemetry introspection endpoint on; empty disables it")
	flag.StringVar(&flagAuditDB, "audit-db", "./var/chsink-audit.db", "path to the SQLite operational audit log")
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

	if flagConfigPath == "" {
		flog.Fatalf("-config is required")
	}

	db, err := audit.Open(flagAuditDB)
	if err != nil {
		flog.Fatalf("opening audit log: %s", err)
	}
	defer db.Close()

	raw, err := config.ReadSource(context.Background(), flagConfigPath)
	if err != nil {
		flog.Fatalf("reading sink config from %s: %s", flagConfigPath, err)
	}
	sinkCfg, err := config.ParseSinkConfig(raw)
	if err != nil {
		flog.Fatalf("parsing sink config: %s", err)
	}

	schema := schemaFromColumns(sinkCfg)

	var in fstransport.Channel
	if flagNatsAddress == "" {
		in = fstransport.NewMemory(schema, 256)
	} else {
		nc, err := fstransport.NewNatsAvro(fstransport.Config{Address: flagNatsAddress, Subject: flagSubjectIn}, schema)
		if err != nil {
			flog.Fatalf("connecting input transport: %s", err)
		}
		in = nc
	}
	defer in.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := chsink.Dial(ctx, sinkCfg.ToChsinkConfig().DSN)
	cancel()
	if err != nil {
		flog.Fatalf("connecting to ClickHouse: %s", err)
	}
	defer conn.Close()

	if err := describeAndValidate(conn, sinkCfg.ToChsinkConfig()); err != nil {
		flog.Fatalf("validating table schema: %s", err)
	}

	sink, err := chsink.NewSink(sinkCfg.ToChsinkConfig(), schema)
	if err != nil {
		flog.Fatalf("building sink: %s", err)
	}
	sink.Start(conn)

	tree := telemetry.NewTree()
	registerChsinkTelemetry(tree, sink)
	var telemetrySrv interface{ Close() error }
	if flagTelemetryAddr != "" {
		telemetrySrv = telemetry.Serve(flagTelemetryAddr, tree)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		runCancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	runLoop(runCtx, in, sink, schema, db)

	sink.Stop()
	if telemetrySrv != nil {
		telemetrySrv.Close()
	}
	_ = db.Log(context.Background(), time.Now(), "chsink", audit.KindShutdownClean, "chsink exiting")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
}

// schemaFromColumns builds a starting record.Schema from the configured
// column mapping's field names, all typed as strings: the transport
// negotiates the real typed schema on the first format-change event, but a
// driver needs a concrete schema to validate against before that happens.
func schemaFromColumns(cfg config.SinkConfig) *record.Schema {
	fields := make([]record.Field, 0, len(cfg.Columns))
	seen := map[string]bool{}
	for _, c := range cfg.Columns {
		if seen[c.Field] {
			continue
		}
		seen[c.Field] = true
		fields = append(fields, record.Field{Name: c.Field, Kind: record.KindString})
	}
	return record.NewSchema(fields, 1)
}

// describeAndValidate issues DESCRIBE TABLE against the live connection and
// fails fast if a configured column name is missing from the table. Column
// types and column order are not compared.
func describeAndValidate(conn interface {
	DescribeTable(ctx context.Context, table string) (map[string]string, error)
}, cfg chsink.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cols, err := conn.DescribeTable(ctx, cfg.Table)
	if err != nil {
		return err
	}
	for _, c := range cfg.Columns {
		if _, ok := cols[c.ColumnName]; !ok {
			return schemaMismatchError(cfg.Table, c.ColumnName)
		}
	}
	return nil
}

func schemaMismatchError(table, column string) error {
	return &tableColumnMissingError{table: table, column: column}
}

type tableColumnMissingError struct {
	table string
	column string
}

func (e *tableColumnMissingError) Error() string {
	return "chsink: table " + e.table + " is missing configured column " + e.column
}

func runLoop(ctx context.Context, in fstransport.Channel, sink *chsink.Sink, schema *record.Schema, db *audit.DB) {
	for {
		view, changed, ok, err := in.Recv(ctx)
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
		if changed {
			if err := sink.Rebind(in.Schema()); err != nil {
				_ = db.Log(ctx, time.Now(), "chsink", audit.KindSchemaMismatch, err.Error())
				flog.Errorf("format change: %s", err)
				continue
			}
		}

		if err := sink.ProcessRecord(view); err != nil {
			flog.Errorf("processing record: %s", err)
		}
	}
}

func registerChsinkTelemetry(tree *telemetry.Tree, sink *chsink.Sink) {
	_ = tree.Register("chsink/rows_buffered", func() telemetry.Content {
			return telemetry.Scalar(float64(sink.Stats().RowsBuffered))
	})
	_ = tree.Register("chsink/blocks_sent", func() telemetry.Content {
			return telemetry.Scalar(float64(sink.Stats().BlocksSent))
	})
	_ = tree.Register("chsink/rows_inserted", func() telemetry.Content {
			return telemetry.Scalar(float64(sink.Stats().RowsInserted))
	})
	_ = tree.Register("chsink/insert_errors", func() telemetry.Content {
			return telemetry.Scalar(float64(sink.Stats().InsertErrors))
	})
}
