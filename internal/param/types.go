// internal/param/types.go
package param

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the closed set of parameter types.
// The numeric values are part of the register map and MUST NOT change.
type Type uint8

const (
	Empty Type = iota
	Bool8
	Int64
	Float32
	String
)

// StringCapacity is the stored size of a string parameter:
// 64 payload bytes plus the terminator.
const StringCapacity = 65

// MaxStringLen is the longest string payload that survives a write.
const MaxStringLen = StringCapacity - 1

// Size returns the number of bytes a value of this type occupies in the Value Store.
func (t Type) Size() int {
	switch t {
	case Bool8:
		return 1
	case Int64:
		return 8
	case Float32:
		return 4
	case String:
		return StringCapacity
	default:
		return 0
	}
}

// Valid reports whether t is one of the declared tags.
func (t Type) Valid() bool {
	return t <= String
}

func (t Type) String() string {
	switch t {
	case Empty:
		return "empty"
	case Bool8:
		return "bool8"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case String:
		return "string"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType maps a declarative type name onto a Type.
// A "uavcan_" prefix is accepted so parameter tables can be lifted verbatim.
func ParseType(s string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.TrimPrefix(n, "uavcan_")

	switch n {
	case "empty":
		return Empty, nil
	case "bool8", "bool", "uint8":
		return Bool8, nil
	case "int64", "int":
		return Int64, nil
	case "float32", "float", "real":
		return Float32, nil
	case "string", "str":
		return String, nil
	}
	return Empty, fmt.Errorf("param: unknown type %q", s)
}

// Value is one parameter value. The tag and the payload always travel together.
type Value struct {
	typ Type
	u8  uint8
	i   int64
	f   float32
	s   string
}

func EmptyValue() Value { return Value{} }

// BoolValue stores true as 1 and false as 0.
func BoolValue(v bool) Value {
	if v {
		return Value{typ: Bool8, u8: 1}
	}
	return Value{typ: Bool8}
}

// Bool8Value keeps the raw byte verbatim.
func Bool8Value(v uint8) Value { return Value{typ: Bool8, u8: v} }

func Int64Value(v int64) Value { return Value{typ: Int64, i: v} }

func Float32Value(v float32) Value { return Value{typ: Float32, f: v} }

// StringValue holds s untruncated; truncation happens when the value is stored.
func StringValue(s string) Value { return Value{typ: String, s: s} }

func (v Value) Type() Type { return v.typ }

func (v Value) Bool() bool { return v.u8 != 0 }

func (v Value) Uint8() uint8 { return v.u8 }

func (v Value) Int64() int64 { return v.i }

func (v Value) Float32() float32 { return v.f }

func (v Value) Text() string { return v.s }

func (v Value) String() string {
	switch v.typ {
	case Bool8:
		return strconv.Itoa(int(v.u8))
	case Int64:
		return strconv.FormatInt(v.i, 10)
	case Float32:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case String:
		return strconv.Quote(v.s)
	default:
		return "<empty>"
	}
}

// truncateString applies the stored-string rule: at most MaxStringLen bytes,
// cut at the first NUL.
func truncateString(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	return s
}
