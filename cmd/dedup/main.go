// Command dedup is the deduplication driver: it reads flow
// records off a transport, extracts a FlowKey and link bitfield from each,
// and drops a record when the same flow was already seen from a different
// collector (link bitfield) within its timeout window; repeated
// observations from the same collector are forwarded.
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
	"github.com/cesnet/nemea-flowmods/internal/dedup"
	"github.com/cesnet/nemea-flowmods/internal/fstransport"
	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/internal/telemetry"
	"github.com/cesnet/nemea-flowmods/internal/runtimeEnv"
	"github.com/cesnet/nemea-flowmods/pkg/flog"
)

func main() { runtimeEnv.SystemdNotifiy(false, "starting"); run() }

func run() {
	var (
		flagCapacityExp int
		flagTimeout time.Duration
		flagNatsAddress string
		flagSubjectIn string
		flagSubjectOut string
		flagTelemetryAddr string
		flagAuditDB string
		flagLogLevel string
		flagLogDateTime bool
		flagGops bool
	)
	flag.IntVar(&flagCapacityExp, "capacity-exp", 20, "log2 of the timeout map's entry capacity")
	flag.DurationVar(&flagTimeout, "timeout", 60*time.Second, "per-flow entry timeout")
	flag.StringVar(&flagNatsAddress, "nats-address", "", "NATS server address; empty uses an in-process transport (for tests)")
	flag.StringVar(&flagSubjectIn, "nats-subject-in", "flows.raw", "NATS subject to receive records from")
	flag.StringVar(&flagSubjectOut, "nats-subject-out", "flows.deduped", "NATS subject to publish deduplicated records to")
	flag.StringVar(&flagTelemetryAddr, "telemetry-addr", "", "address to serve the telemetry introspection endpoint on; empty disables it")
	flag.StringVar(&flagAuditDB, "audit-db", "./var/dedup-audit.db", "path to the SQLite operational audit log")
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

	dd, err := dedup.New(flagCapacityExp, flagTimeout)
	if err != nil {
		flog.Fatalf("building deduplicator: %s", err)
	}

	tree := telemetry.NewTree()
	registerDedupTelemetry(tree, dd)
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
	runLoop(ctx, in, out, schema, dd, db)

	if telemetrySrv != nil {
		telemetrySrv.Close()
	}
	_ = db.Log(context.Background(), time.Now(), "dedup", audit.KindShutdownClean, "dedup exiting")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
}

// defaultFlowSchema describes the 5-tuple plus link bitfield fields the
// dedup driver needs; a production deployment's transport negotiates the
// real schema, but every driver still needs a concrete starting point to
// validate against until the first format-change event arrives.
func defaultFlowSchema() *record.Schema {
	return record.NewSchema([]record.Field{
			{Name: "SRC_IP", Kind: record.KindIPv6},
			{Name: "DST_IP", Kind: record.KindIPv6},
			{Name: "SRC_PORT", Kind: record.KindU16},
			{Name: "DST_PORT", Kind: record.KindU16},
			{Name: "PROTOCOL", Kind: record.KindU8},
			{Name: "LINK_BIT_FIELD", Kind: record.KindU64},
		}, 1)
}

type fieldIDs struct {
	srcIP, dstIP, srcPort, dstPort, proto, link record.FieldID
}

func resolveFields(schema *record.Schema) (fieldIDs, error) {
	names, err := record.ResolveAll(schema, []string{"SRC_IP", "DST_IP", "SRC_PORT", "DST_PORT", "PROTOCOL", "LINK_BIT_FIELD"})
	if err != nil {
		return fieldIDs{}, err
	}
	return fieldIDs{
		srcIP: names["SRC_IP"], dstIP: names["DST_IP"],
		srcPort: names["SRC_PORT"], dstPort: names["DST_PORT"],
		proto: names["PROTOCOL"], link: names["LINK_BIT_FIELD"],
	}, nil
}

func extractFlowKey(view *record.View, ids fieldIDs) (dedup.FlowKey, dedup.LinkBitField, bool) {
	srcV, ok := view.Get(ids.srcIP)
	if !ok {
		return dedup.FlowKey{}, 0, false
	}
	dstV, ok := view.Get(ids.dstIP)
	if !ok {
		return dedup.FlowKey{}, 0, false
	}
	srcIP, _, err := srcV.IP()
	if err != nil {
		return dedup.FlowKey{}, 0, false
	}
	dstIP, _, err := dstV.IP()
	if err != nil {
		return dedup.FlowKey{}, 0, false
	}

	srcPort, _ := fieldUint16(view, ids.srcPort)
	dstPort, _ := fieldUint16(view, ids.dstPort)
	proto, _ := fieldUint8(view, ids.proto)
	link, _ := fieldUint64(view, ids.link)

	key := dedup.FlowKey{
		SrcIP: srcIP, DstIP: dstIP,
		SrcPort: srcPort, DstPort: dstPort, Proto: proto,
	}
	return key, dedup.LinkBitField(link), true
}

func fieldUint16(view *record.View, id record.FieldID) (uint16, bool) {
	v, ok := view.Get(id)
	if !ok {
		return 0, false
	}
	u, err := v.Uint()
	if err != nil {
		return 0, false
	}
	return uint16(u), true
}

func fieldUint8(view *record.View, id record.FieldID) (uint8, bool) {
	v, ok := view.Get(id)
	if !ok {
		return 0, false
	}
	u, err := v.Uint()
	if err != nil {
		return 0, false
	}
	return uint8(u), true
}

func fieldUint64(view *record.View, id record.FieldID) (uint64, bool) {
	v, ok := view.Get(id)
	if !ok {
		return 0, false
	}
	u, err := v.Uint()
	if err != nil {
		return 0, false
	}
	return u, true
}

func runLoop(ctx context.Context, in fstransport.Channel, out fstransport.Sink, schema *record.Schema, dd *dedup.Deduplicator, db *audit.DB) {
	ids, err := resolveFields(schema)
	if err != nil {
		flog.Fatalf("resolving fields against initial schema: %s", err)
	}

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
			ids, err = resolveFields(in.Schema())
			if err != nil {
				_ = db.Log(ctx, time.Now(), "dedup", audit.KindSchemaMismatch, err.Error())
				flog.Errorf("format change: %s", err)
				continue
			}
			dd.Clear()
		}

		key, link, ok := extractFlowKey(view, ids)
		if !ok {
			continue
		}
		if dd.IsDuplicate(key, link, time.Now()) {
			continue
		}
		if err := out.Send(ctx, view); err != nil {
			flog.Errorf("sending record: %s", err)
		}
	}
}

func registerDedupTelemetry(tree *telemetry.Tree, dd *dedup.Deduplicator) {
	_ = tree.Register("dedup/inserted", func() telemetry.Content {
			return telemetry.Scalar(float64(dd.Stats().Inserted))
	})
	_ = tree.Register("dedup/replaced", func() telemetry.Content {
			return telemetry.Scalar(float64(dd.Stats().Replaced))
	})
	_ = tree.Register("dedup/deduplicated", func() telemetry.Content {
			return telemetry.Scalar(float64(dd.Stats().Deduplicated))
	})
}
