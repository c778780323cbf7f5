package common

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindDate   ValueKind = "date"
	KindEnum   ValueKind = "enum"
	KindBool   ValueKind = "bool"
)

// Value is a tagged union for attribute values. Exactly one of the typed
// fields is meaningful, selected by Kind. Numbers may carry a unit.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Unit string    `json:"unit,omitempty"`
	Date time.Time `json:"date,omitzero"`
	Bool bool      `json:"bool,omitempty"`
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func EnumValue(s string) Value   { return Value{Kind: KindEnum, Str: s} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) Value {
	return Value{Kind: KindDate, Date: t.UTC()}
}

// NumberValue builds a numeric value with an optional unit such as "kg".
func NumberValue(n float64, unit string) Value {
	return Value{Kind: KindNumber, Num: n, Unit: strings.TrimSpace(unit)}
}

// IsZero reports whether the value carries no data.
func (v Value) IsZero() bool {
	switch v.Kind {
	case "":
		return true
	case KindString, KindEnum:
		return strings.TrimSpace(v.Str) == ""
	case KindDate:
		return v.Date.IsZero()
	}
	return false
}

// Equal compares two values by kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString, KindEnum:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num && v.Unit == o.Unit
	case KindDate:
		return v.Date.Equal(o.Date)
	case KindBool:
		return v.Bool == o.Bool
	}
	return true
}

// String renders the value for display, hashing and prompts.
func (v Value) String() string {
	switch v.Kind {
	case KindString, KindEnum:
		return v.Str
	case KindNumber:
		n := strconv.FormatFloat(v.Num, 'f', -1, 64)
		if v.Unit != "" {
			return n + " " + v.Unit
		}
		return n
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
}

// ParseValue infers the most specific Value for a raw string as found in
// structured rows: bool, number (with trailing unit), date, else string.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StringValue("")
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return BoolValue(true)
	case "false", "no":
		return BoolValue(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(n, "")
	}
	if num, unit, ok := splitNumberUnit(s); ok {
		return NumberValue(num, unit)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateValue(t)
		}
	}
	return StringValue(s)
}

func splitNumberUnit(s string) (float64, string, bool) {
	i := 0
	for i < len(s) && (s[i] == '-' || s[i] == '+' || s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, "", false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
	if err != nil {
		return 0, "", false
	}
	unit := strings.TrimSpace(s[i:])
	if unit == "" || len(unit) > 6 || strings.ContainsAny(unit, " ,;") {
		return 0, "", false
	}
	return n, unit, true
}

// FromAny converts a decoded JSON scalar into a Value.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return StringValue(""), nil
	case string:
		return ParseValue(t), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t, ""), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return NumberValue(f, ""), nil
	case int:
		return NumberValue(float64(t), ""), nil
	case int64:
		return NumberValue(float64(t), ""), nil
	}
	return Value{}, fmt.Errorf("unsupported scalar type %T", in)
}

// CloneValues copies an attribute map.
func CloneValues(in map[string]Value) map[string]Value {
	out := make(map[string]Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
