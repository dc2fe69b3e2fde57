package network

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FirstString returns the first probe key that holds a non-empty string
// representation in the row. Probe order is authoritative: an earlier key
// wins even when later keys also carry values.
func FirstString(row map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s, true
			}
		case json.Number:
			return t.String(), true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case int:
			return strconv.Itoa(t), true
		case int64:
			return strconv.FormatInt(t, 10), true
		case bool:
			return strconv.FormatBool(t), true
		}
	}
	return "", false
}

// FirstAmount returns the first probe key holding a parseable amount.
// Unparseable values do not consume the slot; probing continues.
func FirstAmount(row map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		if d, ok := parseAmount(v); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// RowsFromPayload normalizes a decoded JSON payload into row maps. Some
// APIs return a bare array, others wrap the rows under a named key; keys
// are tried in order.
func RowsFromPayload(payload any, keys ...string) []map[string]any {
	switch t := payload.(type) {
	case []any:
		return toRows(t)
	case map[string]any:
		for _, k := range keys {
			v, ok := t[k]
			if !ok || v == nil {
				continue
			}
			switch inner := v.(type) {
			case []any:
				return toRows(inner)
			case map[string]any:
				return []map[string]any{inner}
			}
		}
	}
	return nil
}

func toRows(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

func parseAmount(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, false
		}
		// some APIs emit "1 234,56" style strings
		s = strings.ReplaceAll(s, " ", "")
		if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}
