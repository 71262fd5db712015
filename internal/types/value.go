package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind discriminates the dynamically-typed values that show up in
// completion-marker metadata and the registry config map.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindTime
)

// Value is a tagged union over the types the marker-file coercion rules
// can produce. Modeling this explicitly (instead of map[string]any) keeps
// the coercion order auditable and testable in isolation.
type Value struct {
	Kind  ValueKind
	Str   string
	Bool  bool
	Int   int64
	Float float64
	Time  time.Time
}

// StringValue wraps a raw string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// TimeValue wraps a timestamp.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// AsTime returns the timestamp and true when the value carries one.
func (v Value) AsTime() (time.Time, bool) {
	if v.Kind == KindTime {
		return v.Time, true
	}
	return time.Time{}, false
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	default:
		return v.Str
	}
}

// MarshalJSON encodes the value as its native JSON type; timestamps
// become RFC 3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindTime:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON recovers the tagged form from native JSON. Numbers
// without a fractional part decode as integers; strings that parse as
// RFC 3339 timestamps decode as timestamps.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = BoolValue(x)
	case json.Number:
		text := x.String()
		if !strings.ContainsAny(text, ".eE") {
			i, err := x.Int64()
			if err == nil {
				*v = IntValue(i)
				return nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", text, err)
		}
		*v = FloatValue(f)
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			*v = TimeValue(t)
		} else {
			*v = StringValue(x)
		}
	case nil:
		*v = StringValue("")
	default:
		return fmt.Errorf("unsupported JSON value %s", string(data))
	}
	return nil
}
