// Package attribute provides the key/value model shared by all signal types.
//
// Values are a tagged union over a fixed set of scalar kinds so that
// serialization, redaction and truncation stay finite and testable.
package attribute

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar kind carried by a Value.
type Kind int

const (
	// KindInvalid is the zero Value kind.
	KindInvalid Kind = iota
	KindString
	KindInt64
	KindFloat64
	KindBool
	KindStringSlice
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindStringSlice:
		return "string-slice"
	default:
		return "invalid"
	}
}

// Value holds one scalar of a fixed kind.
type Value struct {
	kind  Kind
	num   uint64
	str   string
	slice []string
}

// StringValue wraps a string.
func StringValue(v string) Value {
	return Value{kind: KindString, str: v}
}

// Int64Value wraps an int64.
func Int64Value(v int64) Value {
	return Value{kind: KindInt64, num: uint64(v)}
}

// Float64Value wraps a float64.
func Float64Value(v float64) Value {
	return Value{kind: KindFloat64, num: math.Float64bits(v)}
}

// BoolValue wraps a bool.
func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// StringSliceValue wraps a copy of the given strings.
func StringSliceValue(v []string) Value {
	cp := make([]string, len(v))
	copy(cp, v)
	return Value{kind: KindStringSlice, slice: cp}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload. It is only meaningful for KindString.
func (v Value) Str() string { return v.str }

// Int64 returns the int64 payload. It is only meaningful for KindInt64.
func (v Value) Int64() int64 { return int64(v.num) }

// Float64 returns the float64 payload. It is only meaningful for KindFloat64.
func (v Value) Float64() float64 { return math.Float64frombits(v.num) }

// Bool returns the bool payload. It is only meaningful for KindBool.
func (v Value) Bool() bool { return v.num != 0 }

// StringSlice returns the slice payload. Callers must not mutate it.
func (v Value) StringSlice() []string { return v.slice }

// AsString renders the value for logging and debug exporters.
func (v Value) AsString() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindStringSlice:
		return "[" + strings.Join(v.slice, ",") + "]"
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindStringSlice:
		if len(v.slice) != len(o.slice) {
			return false
		}
		for i := range v.slice {
			if v.slice[i] != o.slice[i] {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// KeyValue pairs an attribute key with its value.
type KeyValue struct {
	Key   string
	Value Value
}

// String creates a string KeyValue.
func String(key, value string) KeyValue {
	return KeyValue{Key: key, Value: StringValue(value)}
}

// Int creates an int64 KeyValue from an int.
func Int(key string, value int) KeyValue {
	return Int64(key, int64(value))
}

// Int64 creates an int64 KeyValue.
func Int64(key string, value int64) KeyValue {
	return KeyValue{Key: key, Value: Int64Value(value)}
}

// Float64 creates a float64 KeyValue.
func Float64(key string, value float64) KeyValue {
	return KeyValue{Key: key, Value: Float64Value(value)}
}

// Bool creates a bool KeyValue.
func Bool(key string, value bool) KeyValue {
	return KeyValue{Key: key, Value: BoolValue(value)}
}

// StringSlice creates a string-slice KeyValue.
func StringSlice(key string, value []string) KeyValue {
	return KeyValue{Key: key, Value: StringSliceValue(value)}
}

// String renders the pair as key=value.
func (kv KeyValue) String() string {
	return fmt.Sprintf("%s=%s", kv.Key, kv.Value.AsString())
}
