// Package extract pulls numeric fields out of raw provider payloads.
package extract

import (
    "math"
    "strings"

    "github.com/shopspring/decimal"
    "github.com/tidwall/gjson"
)

// Field is one candidate location of a price inside a payload.
type Field struct {
    // Path is a gjson path, e.g. "rates.USD" or "price".
    Path string
}

// PriceFields returns the candidates for a pair's quote currency in
// preference order: rates.<QUOTE>, price, close, bid, ask.
func PriceFields(quote string) []Field {
    return []Field{
        {Path: "rates." + escape(quote)},
        {Path: "price"},
        {Path: "close"},
        {Path: "bid"},
        {Path: "ask"},
    }
}

// First evaluates fields in order and returns the first finite number.
func First(raw []byte, fields []Field) (float64, string, bool) {
    if !gjson.ValidBytes(raw) { return 0, "", false }
    doc := gjson.ParseBytes(raw)
    for _, f := range fields {
        if v, ok := Number(doc.Get(f.Path)); ok {
            return v, f.Path, true
        }
    }
    return 0, "", false
}

// Number coerces a JSON number or numeric string into a finite float.
// Empty strings, non-numeric strings, booleans, objects and null are rejected.
func Number(r gjson.Result) (float64, bool) {
    switch r.Type {
    case gjson.Number:
        return finite(r.Float())
    case gjson.String:
        s := strings.TrimSpace(r.Str)
        if s == "" { return 0, false }
        d, err := decimal.NewFromString(s)
        if err != nil { return 0, false }
        return finite(d.InexactFloat64())
    default:
        return 0, false
    }
}

// NumberAt is Number applied to a path of raw.
func NumberAt(raw []byte, path string) *float64 {
    v, ok := Number(gjson.GetBytes(raw, path))
    if !ok { return nil }
    return &v
}

// BoolAt reads a JSON boolean (or "true"/"false" string) at path.
func BoolAt(raw []byte, path string) *bool {
    r := gjson.GetBytes(raw, path)
    switch {
    case r.Type == gjson.True, r.Type == gjson.False:
        b := r.Bool()
        return &b
    case r.Type == gjson.String:
        switch strings.ToLower(strings.TrimSpace(r.Str)) {
        case "true":
            b := true
            return &b
        case "false":
            b := false
            return &b
        }
    }
    return nil
}

// Int64At reads an integer (number or numeric string) at path.
func Int64At(raw []byte, path string) (int64, bool) {
    v, ok := Number(gjson.GetBytes(raw, path))
    if !ok { return 0, false }
    return int64(v), true
}

// StringAt returns the string form of the value at path, "" when absent.
func StringAt(raw []byte, path string) string {
    return strings.TrimSpace(gjson.GetBytes(raw, path).String())
}

func finite(v float64) (float64, bool) {
    if math.IsNaN(v) || math.IsInf(v, 0) { return 0, false }
    return v, true
}

// escape guards gjson metacharacters in a path segment.
func escape(s string) string {
    var b strings.Builder
    for _, r := range s {
        switch r {
        case '.', '*', '?', '|', '#', '@', '\\':
            b.WriteByte('\\')
        }
        b.WriteRune(r)
    }
    return b.String()
}
