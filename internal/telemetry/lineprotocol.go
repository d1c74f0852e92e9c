package telemetry

import (
	"fmt"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// EncodeLineProtocol walks every path under prefix (its whole subtree) and
// emits one line-protocol point per numeric leaf found, measurement name
// "telemetry", the leaf's full path as a "path" tag and its value as the
// "value" field (with "unit" as a second field when present). Dict leaves
// are descended into rather than emitted directly, matching the original
// module's practice of only ever exporting scalar readings downstream.
func (t *Tree) EncodeLineProtocol(prefix string, at time.Time) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.find(prefix)
	if n == nil {
		return nil, fmt.Errorf("telemetry: no such path %q", prefix)
	}

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	if err := t.encodeNode(&enc, n, at); err != nil {
		return nil, err
	}
	return enc.Bytes(), enc.Err()
}

func (t *Tree) encodeNode(enc *lineprotocol.Encoder, n *node, at time.Time) error {
	if n.leaf != nil {
		return encodeLeaf(enc, n.fullPath, n.leaf(), at)
	}
	for _, child := range n.children {
		if err := t.encodeNode(enc, child, at); err != nil {
			return err
		}
	}
	return nil
}

func encodeLeaf(enc *lineprotocol.Encoder, path string, c Content, at time.Time) error {
	switch v := c.(type) {
	case Scalar:
		enc.StartLine("telemetry")
		enc.AddTag("path", path)
		enc.AddField("value", lineprotocol.MustNewValue(float64(v)))
		enc.EndLine(at)
		return enc.Err()
	case ScalarWithUnit:
		enc.StartLine("telemetry")
		enc.AddTag("path", path)
		enc.AddField("value", lineprotocol.MustNewValue(v.Value))
		enc.AddField("unit", lineprotocol.MustNewValue(v.Unit))
		enc.EndLine(at)
		return enc.Err()
	case Dict:
		for name, child := range v {
			if err := encodeLeaf(enc, path+"/"+name, child, at); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
