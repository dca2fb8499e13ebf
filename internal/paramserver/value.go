// internal/paramserver/value.go
package paramserver

// Kind selects the live field of a generic protocol value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindInteger
	KindReal
	KindBoolean
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	default:
		return "empty"
	}
}

// Value is the remote protocol's generic parameter value.
// Only the field selected by Kind is meaningful.
type Value struct {
	Kind    Kind
	Integer int64
	Real    float32
	Boolean uint8
	String  string
}

// NumericValue is the remote protocol's generic bound value.
type NumericValue struct {
	Kind    Kind // KindEmpty, KindInteger or KindReal
	Integer int64
	Real    float32
}

func IntegerValue(v int64) Value { return Value{Kind: KindInteger, Integer: v} }

func RealValue(v float32) Value { return Value{Kind: KindReal, Real: v} }

func BooleanValue(v bool) Value {
	if v {
		return Value{Kind: KindBoolean, Boolean: 1}
	}
	return Value{Kind: KindBoolean}
}

func StringValue(s string) Value { return Value{Kind: KindString, String: s} }
