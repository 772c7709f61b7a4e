package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PropertyKind enumerates the scalar kinds an entity property may hold.
// Extraction output is loosely typed; modelling it as a closed union keeps
// the graph adapter's serialization well-defined.
type PropertyKind string

const (
	KindString PropertyKind = "string"
	KindNumber PropertyKind = "number"
	KindBool   PropertyKind = "bool"
	KindTime   PropertyKind = "time"
)

// PropertyValue is a tagged scalar. Exactly one payload field is meaningful,
// selected by Kind.
type PropertyValue struct {
	Kind PropertyKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func StringValue(s string) PropertyValue  { return PropertyValue{Kind: KindString, Str: s} }
func NumberValue(f float64) PropertyValue { return PropertyValue{Kind: KindNumber, Num: f} }
func BoolValue(b bool) PropertyValue      { return PropertyValue{Kind: KindBool, Bool: b} }
func TimeValue(t time.Time) PropertyValue { return PropertyValue{Kind: KindTime, Time: t.UTC()} }

// PropertyFromAny coerces decoded JSON values into the union. Timestamps are
// recognised from RFC 3339 strings. Non-scalar values are rejected.
func PropertyFromAny(v any) (PropertyValue, bool) {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return TimeValue(ts), true
		}
		return StringValue(t), true
	case bool:
		return BoolValue(t), true
	case float64:
		return NumberValue(t), true
	case float32:
		return NumberValue(float64(t)), true
	case int:
		return NumberValue(float64(t)), true
	case int64:
		return NumberValue(float64(t)), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return NumberValue(f), true
		}
	case time.Time:
		return TimeValue(t), true
	}
	return PropertyValue{}, false
}

// Scalar returns the backend-safe representation used as a graph parameter.
func (p PropertyValue) Scalar() any {
	switch p.Kind {
	case KindString:
		return p.Str
	case KindNumber:
		return p.Num
	case KindBool:
		return p.Bool
	case KindTime:
		return p.Time.UTC().Format(time.RFC3339Nano)
	}
	return nil
}

// String renders the value for display and vector-store metadata.
func (p PropertyValue) String() string {
	switch p.Kind {
	case KindString:
		return p.Str
	case KindNumber:
		return strconv.FormatFloat(p.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(p.Bool)
	case KindTime:
		return p.Time.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// PropertiesFromAny converts a loosely typed mapping, dropping entries that
// do not coerce to a supported scalar kind.
func PropertiesFromAny(raw map[string]any) map[string]PropertyValue {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]PropertyValue, len(raw))
	for k, v := range raw {
		if pv, ok := PropertyFromAny(v); ok {
			out[k] = pv
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ScalarFromAny reverses Scalar: it rebuilds a PropertyValue from a value
// read back out of the graph store.
func ScalarFromAny(v any) (PropertyValue, error) {
	if pv, ok := PropertyFromAny(v); ok {
		return pv, nil
	}
	return PropertyValue{}, fmt.Errorf("unsupported property value %T", v)
}
