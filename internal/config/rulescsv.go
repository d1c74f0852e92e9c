package config

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/cesnet/nemea-flowmods/internal/record"
	"github.com/cesnet/nemea-flowmods/internal/rules"
)

// typeNames maps a CSV header type token to its record.Kind. Appending "*" to any entry denotes an array
// of that element type.
var typeNames = map[string]record.Kind{
	"int8": record.KindI8, "int16": record.KindI16, "int32": record.KindI32, "int64": record.KindI64,
	"uint8": record.KindU8, "uint16": record.KindU16, "uint32": record.KindU32, "uint64": record.KindU64,
	"char": record.KindChar, "float": record.KindF32, "double": record.KindF64,
	"ipaddr": record.KindIPv4, "ipv4": record.KindIPv4, "ipv6": record.KindIPv6,
	"macaddr": record.KindMAC, "time": record.KindTime,
	"string": record.KindString, "bytes": record.KindBytes,
}

func parseTypeToken(tok string) (record.Kind, record.Kind, error) {
	if elem, ok := strings.CutSuffix(tok, "*"); ok {
		k, ok := typeNames[elem]
		if !ok {
			return 0, 0, fmt.Errorf("config: unknown element type %q", elem)
		}
		return record.KindArray, k, nil
	}
	k, ok := typeNames[tok]
	if !ok {
		return 0, 0, fmt.Errorf("config: unknown type %q", tok)
	}
	return k, record.KindInvalid, nil
}

// ParseRuleCSV parses a rule list in the CSV format: a header row of
// "<type> <name>" columns, followed by one row per rule, each cell either a
// pattern literal or empty/"*" for a wildcard.
func ParseRuleCSV(r io.Reader) (*rules.RuleSet, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("config: reading rule CSV header: %w", err)
	}

	fields := make([]rules.FieldSpec, len(header))
	for i, col := range header {
		parts := strings.Fields(col)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed column header %q, want \"<type> <name>\"", col)
		}
		kind, _, err := parseTypeToken(parts[0])
		if err != nil {
			return nil, err
		}
		fields[i] = rules.FieldSpec{Name: parts[1], Kind: kind}
	}

	rs := &rules.RuleSet{Fields: fields}

	ruleID := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: reading rule CSV row: %w", err)
		}
		if len(row) != len(fields) {
			return nil, fmt.Errorf("config: rule row %d has %d cells, want %d", ruleID, len(row), len(fields))
		}

		var rule rules.Rule
		rule.ID = ruleID
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" || cell == "*" {
				continue
			}
			pat, err := cellToPattern(fields[i].Kind, cell)
			if err != nil {
				return nil, fmt.Errorf("config: rule row %d, column %q: %w", ruleID, fields[i].Name, err)
			}
			rule.Fields = append(rule.Fields, rules.RuleField{FieldIndex: i, Pattern: pat})
		}
		rs.Rules = append(rs.Rules, rule)
		ruleID++
	}

	return rs, nil
}

// cellToPattern interprets one CSV cell for a column of the given kind. A
// cell of the form "/regex/" compiles a regex pattern on a string column;
// an IP-typed column parses the cell as a CIDR prefix (a bare address is
// treated as a /32 or /128 exact match).
func cellToPattern(kind record.Kind, cell string) (*rules.Pattern, error) {
	switch kind {
	case record.KindIPv4, record.KindIPv6:
		if strings.Contains(cell, "/") {
			prefix, err := netip.ParsePrefix(cell)
			if err != nil {
				return nil, fmt.Errorf("bad ip prefix %q: %w", cell, err)
			}
			return rules.IPPrefixPattern(prefix), nil
		}
		addr, err := netip.ParseAddr(cell)
		if err != nil {
			return nil, fmt.Errorf("bad ip address %q: %w", cell, err)
		}
		bits := 32
		if addr.Is6() && !addr.Is4In6() {
			bits = 128
		}
		return rules.IPPrefixPattern(netip.PrefixFrom(addr, bits)), nil

	case record.KindString:
		if rest, ok := strings.CutPrefix(cell, "/"); ok {
			if pat, ok := strings.CutSuffix(rest, "/"); ok {
				return rules.RegexPattern(pat)
			}
		}
		return rules.ExactString(cell), nil

	default:
		v, err := parseScalarCell(kind, cell)
		if err != nil {
			return nil, err
		}
		return rules.ExactScalar(v), nil
	}
}

func parseScalarCell(kind record.Kind, cell string) (record.Value, error) {
	switch kind {
	case record.KindI8:
		x, err := strconv.ParseInt(cell, 10, 8)
		return record.NewI8(int8(x)), err
	case record.KindI16:
		x, err := strconv.ParseInt(cell, 10, 16)
		return record.NewI16(int16(x)), err
	case record.KindI32:
		x, err := strconv.ParseInt(cell, 10, 32)
		return record.NewI32(int32(x)), err
	case record.KindI64:
		x, err := strconv.ParseInt(cell, 10, 64)
		return record.NewI64(x), err
	case record.KindU8:
		x, err := strconv.ParseUint(cell, 10, 8)
		return record.NewU8(uint8(x)), err
	case record.KindU16:
		x, err := strconv.ParseUint(cell, 10, 16)
		return record.NewU16(uint16(x)), err
	case record.KindU32:
		x, err := strconv.ParseUint(cell, 10, 32)
		return record.NewU32(uint32(x)), err
	case record.KindU64:
		x, err := strconv.ParseUint(cell, 10, 64)
		return record.NewU64(x), err
	case record.KindChar:
		if len(cell) != 1 {
			return record.Value{}, fmt.Errorf("char cell must be one byte: %q", cell)
		}
		return record.NewChar(cell[0]), nil
	case record.KindF32:
		x, err := strconv.ParseFloat(cell, 32)
		return record.NewF32(float32(x)), err
	case record.KindF64:
		x, err := strconv.ParseFloat(cell, 64)
		return record.NewF64(x), err
	case record.KindMAC:
		mac, err := parseMAC(cell)
		return record.NewMAC(mac), err
	case record.KindBytes:
		return record.NewBytes([]byte(cell)), nil
	default:
		return record.Value{}, fmt.Errorf("unsupported scalar cell type %s", kind)
	}
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("bad mac address %q", s)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, fmt.Errorf("bad mac address %q: %w", s, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}
