package fstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/linkedin/goavro/v2"
	"github.com/nats-io/nats.go"

	"github.com/cesnet/nemea-flowmods/internal/record"
)

// NatsAvro is the production record transport: records are Avro-encoded
// per the current schema and published/consumed over a NATS subject, using
// a thin nats.go client wrapper plus an Avro codec for the wire payload.
type NatsAvro struct {
	conn *nats.Conn
	subject string
	schema *record.Schema
	codec *goavro.Codec

	sub *nats.Subscription
	msgs chan *nats.Msg

	seenFirst bool
	lastGen uint64
}

// Config is the JSON-configurable connection info for a NATS endpoint.
type Config struct {
	Address string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
	Subject string `json:"subject"`
}

// ConfigSchema is the JSON-Schema validating Config.
const ConfigSchema = `{
	"type": "object",
	"properties": {
 "address": {"type": "string"},
 "username": {"type": "string"},
 "password": {"type": "string"},
 "creds-file-path": {"type": "string"},
 "subject": {"type": "string"}
	},
	"required": ["address", "subject"]
}`

// NewNatsAvro connects to cfg.Address and subscribes/binds to cfg.Subject
// for records conforming to schema.
func NewNatsAvro(cfg Config, schema *record.Schema) (*NatsAvro, error) {
	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	conn, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("fstransport: nats connect: %w", err)
	}

	codec, err := goavro.NewCodec(avroSchemaFor(schema))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fstransport: building avro codec: %w", err)
	}

	t := &NatsAvro{
		conn: conn,
		subject: cfg.Subject,
		schema: schema,
		codec: codec,
		msgs: make(chan *nats.Msg, 256),
	}

	sub, err := conn.ChanSubscribe(cfg.Subject, t.msgs)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("fstransport: subscribe to %q: %w", cfg.Subject, err)
	}
	t.sub = sub
	return t, nil
}

func (t *NatsAvro) Schema() *record.Schema { return t.schema }

func (t *NatsAvro) Recv(ctx context.Context) (*record.View, bool, bool, error) {
	select {
	case msg, ok := <-t.msgs:
		if !ok {
			return nil, false, false, nil
		}
		native, _, err := t.codec.NativeFromBinary(msg.Data)
		if err != nil {
			return nil, false, true, fmt.Errorf("fstransport: decoding avro payload: %w", err)
		}
		fields, ok := native.(map[string]any)
		if !ok {
			return nil, false, true, fmt.Errorf("fstransport: unexpected avro native type %T", native)
		}

		view := record.NewView(t.schema)
		for i := 0; i < t.schema.Len(); i++ {
			f, _ := t.schema.Field(record.FieldID(i))
			raw, present := fields[f.Name]
			if !present {
				continue
			}
			v, err := nativeToValue(f.Kind, raw)
			if err != nil {
				return nil, false, true, fmt.Errorf("fstransport: field %q: %w", f.Name, err)
			}
			if err := view.Set(record.FieldID(i), v); err != nil {
				return nil, false, true, err
			}
		}

		changed := !t.seenFirst || t.schema.Generation() != t.lastGen
		t.lastGen = t.schema.Generation()
		t.seenFirst = true
		return view, changed, true, nil

	case <-ctx.Done():
		return nil, false, false, ctx.Err()
	}
}

func (t *NatsAvro) Send(ctx context.Context, view *record.View) error {
	native := make(map[string]any, t.schema.Len())
	for i := 0; i < t.schema.Len(); i++ {
		f, _ := t.schema.Field(record.FieldID(i))
		v, ok := view.Get(record.FieldID(i))
		if !ok {
			continue
		}
		raw, err := valueToNative(v)
		if err != nil {
			return fmt.Errorf("fstransport: field %q: %w", f.Name, err)
		}
		native[f.Name] = raw
	}

	buf, err := t.codec.BinaryFromNative(nil, native)
	if err != nil {
		return fmt.Errorf("fstransport: encoding avro payload: %w", err)
	}
	return t.conn.Publish(t.subject, buf)
}

func (t *NatsAvro) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}

// avroSchemaFor builds an Avro record schema JSON from schema, mapping
// every field to a non-nullable primitive/array type: every channel
// record is fully typed, with no optional wire fields.
func avroSchemaFor(schema *record.Schema) string {
	type avroField struct {
		Name string `json:"name"`
		Type any `json:"type"`
	}
	fields := make([]avroField, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		f, _ := schema.Field(record.FieldID(i))
		fields[i] = avroField{Name: f.Name, Type: avroType(f.Kind, f.ElemKind)}
	}

	doc := map[string]any{
		"type": "record",
		"name": "FlowRecord",
		"fields": fields,
	}
	raw, _ := json.Marshal(doc)
	return string(raw)
}

func avroType(k, elem record.Kind) any {
	switch k {
	case record.KindI8, record.KindI16, record.KindI32, record.KindChar:
		return "int"
	case record.KindI64, record.KindU8, record.KindU16, record.KindU32, record.KindU64, record.KindTime:
		return "long"
	case record.KindF32:
		return "float"
	case record.KindF64:
		return "double"
	case record.KindIPv4, record.KindIPv6, record.KindMAC, record.KindBytes:
		return "bytes"
	case record.KindString:
		return "string"
	case record.KindArray:
		return map[string]any{"type": "array", "items": avroType(elem, record.KindInvalid)}
	default:
		return "bytes"
	}
}

func valueToNative(v record.Value) (any, error) {
	switch v.Kind() {
	case record.KindI8, record.KindI16, record.KindI32:
		x, _ := v.Int()
		return int32(x), nil
	case record.KindI64:
		x, _ := v.Int()
		return x, nil
	case record.KindU8, record.KindU16, record.KindU32, record.KindChar:
		x, _ := v.Uint()
		return int64(x), nil
	case record.KindU64:
		x, _ := v.Uint()
		return int64(x), nil
	case record.KindTime:
		ns, _ := v.TimeNs()
		return int64(ns), nil
	case record.KindF32:
		x, _ := v.Float()
		return float32(x), nil
	case record.KindF64:
		x, _ := v.Float()
		return x, nil
	case record.KindIPv4, record.KindIPv6:
		addr, _, _ := v.IP()
		return addr.AsSlice(), nil
	case record.KindMAC:
		mac, _ := v.MAC()
		return append([]byte(nil), mac[:]...), nil
	case record.KindString:
		s, _ := v.Str()
		return s, nil
	case record.KindBytes:
		b, _ := v.Bytes()
		return b, nil
	case record.KindArray:
		vals, _, _ := v.Array()
		out := make([]any, len(vals))
		for i, e := range vals {
			n, err := valueToNative(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

func nativeToValue(kind record.Kind, raw any) (record.Value, error) {
	switch kind {
	case record.KindI8:
		return record.NewI8(int8(raw.(int32))), nil
	case record.KindI16:
		return record.NewI16(int16(raw.(int32))), nil
	case record.KindI32:
		return record.NewI32(raw.(int32)), nil
	case record.KindI64:
		return record.NewI64(raw.(int64)), nil
	case record.KindU8:
		return record.NewU8(uint8(raw.(int64))), nil
	case record.KindU16:
		return record.NewU16(uint16(raw.(int64))), nil
	case record.KindU32:
		return record.NewU32(uint32(raw.(int64))), nil
	case record.KindU64:
		return record.NewU64(uint64(raw.(int64))), nil
	case record.KindChar:
		return record.NewChar(byte(raw.(int32))), nil
	case record.KindF32:
		return record.NewF32(raw.(float32)), nil
	case record.KindF64:
		return record.NewF64(raw.(float64)), nil
	case record.KindTime:
		return record.NewTime(uint64(raw.(int64))), nil
	case record.KindIPv4:
		b := raw.([]byte)
		addr, ok := netip.AddrFromSlice(b)
		if !ok {
			return record.Value{}, fmt.Errorf("bad ipv4 byte length %d", len(b))
		}
		return record.NewIPv4(addr, 32), nil
	case record.KindIPv6:
		b := raw.([]byte)
		addr, ok := netip.AddrFromSlice(b)
		if !ok {
			return record.Value{}, fmt.Errorf("bad ipv6 byte length %d", len(b))
		}
		return record.NewIPv6(addr, 128), nil
	case record.KindMAC:
		b := raw.([]byte)
		if len(b) != 6 {
			return record.Value{}, fmt.Errorf("bad mac byte length %d", len(b))
		}
		var mac [6]byte
		copy(mac[:], b)
		return record.NewMAC(mac), nil
	case record.KindString:
		return record.NewString(raw.(string)), nil
	case record.KindBytes:
		return record.NewBytes(raw.([]byte)), nil
	default:
		return record.Value{}, fmt.Errorf("unsupported kind %s", kind)
	}
}
