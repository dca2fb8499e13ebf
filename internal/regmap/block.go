// internal/regmap/block.go
package regmap

import (
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
)

// ErrBadAddress reports a write that does not line up with a writable field.
var ErrBadAddress = errors.New("regmap: write does not match a writable field")

// Block is everything one parameter exposes on the wire.
// It carries no logic and no memory beyond current state.
type Block struct {
	Name    string
	Type    param.Type
	Value   paramserver.Value
	Default paramserver.Value
	Max     paramserver.NumericValue
	Min     paramserver.NumericValue
}

// ---- tags ----

// TagOf returns the wire tag for t.
func TagOf(t param.Type) uint16 {
	switch t {
	case param.Bool8:
		return TagBool8
	case param.Int64:
		return TagInt64
	case param.Float32:
		return TagFloat32
	case param.String:
		return TagString
	default:
		return TagEmpty
	}
}

// TypeOfTag maps a wire tag back onto a type.
func TypeOfTag(tag uint16) (param.Type, error) {
	switch tag {
	case TagEmpty:
		return param.Empty, nil
	case TagBool8:
		return param.Bool8, nil
	case TagInt64:
		return param.Int64, nil
	case TagFloat32:
		return param.Float32, nil
	case TagString:
		return param.String, nil
	default:
		return param.Empty, fmt.Errorf("regmap: unknown type tag %d", tag)
	}
}

// ValueRegs returns how many registers a write of t's numeric value covers.
// Zero for types without a numeric field.
func ValueRegs(t param.Type) int {
	switch t {
	case param.Bool8:
		return 1
	case param.Int64:
		return 4
	case param.Float32:
		return 2
	default:
		return 0
	}
}

// ---- encode ----

// Encode converts a Block into a full parameter block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(b Block) []uint16 {
	regs := make([]uint16, BlockRegs)

	regs[SlotType] = TagOf(b.Type)

	switch b.Type {
	case param.String:
		s := clip(b.Value.String)
		regs[SlotStringLen] = uint16(len(s))
		copy(regs[SlotString:], encodeString(s))
		copy(regs[SlotDefaultString:], encodeString(clip(b.Default.String)))

	case param.Bool8, param.Int64, param.Float32:
		copy(regs[SlotValue:], encodeNumeric(b.Type, b.Value))
		copy(regs[SlotDefault:], encodeNumeric(b.Type, b.Default))
		if b.Max.Kind != paramserver.KindEmpty || b.Min.Kind != paramserver.KindEmpty {
			regs[SlotFlags] |= FlagBounds
			copy(regs[SlotMin:], encodeNumeric(b.Type, widen(b.Min)))
			copy(regs[SlotMax:], encodeNumeric(b.Type, widen(b.Max)))
		}
	}

	copy(regs[SlotName:], encodeName(b.Name))

	return regs
}

func widen(n paramserver.NumericValue) paramserver.Value {
	return paramserver.Value{Kind: n.Kind, Integer: n.Integer, Real: n.Real}
}

// encodeNumeric lays v out as t's numeric field, most significant register first.
func encodeNumeric(t param.Type, v paramserver.Value) []uint16 {
	out := make([]uint16, NumericRegs)

	switch t {
	case param.Bool8:
		out[0] = uint16(v.Boolean)
	case param.Int64:
		u := uint64(v.Integer)
		out[0] = uint16(u >> 48)
		out[1] = uint16(u >> 32)
		out[2] = uint16(u >> 16)
		out[3] = uint16(u)
	case param.Float32:
		u := math.Float32bits(v.Real)
		out[0] = uint16(u >> 16)
		out[1] = uint16(u)
	}

	return out
}

// encodeString packs up to 64 bytes into 32 registers.
// Each register stores two bytes in big-endian order; the tail is NUL padded.
func encodeString(s string) []uint16 {
	out := make([]uint16, StringRegs)

	b := []byte(s)
	if len(b) > StringMaxChars {
		b = b[:StringMaxChars]
	}

	for i := 0; i < StringMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}

// encodeName is encodeString with non-printable bytes replaced.
func encodeName(name string) []uint16 {
	b := []byte(clip(name))
	for i := range b {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}
	return encodeString(string(b))
}

func clip(s string) string {
	if len(s) > StringMaxChars {
		return s[:StringMaxChars]
	}
	return s
}

// ---- decode ----

// Decode converts a full parameter block back into a Block.
func Decode(regs []uint16) (Block, error) {
	if len(regs) != BlockRegs {
		return Block{}, fmt.Errorf("regmap: block has %d registers, want %d", len(regs), BlockRegs)
	}

	t, err := TypeOfTag(regs[SlotType])
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Name: decodeString(regs[SlotName : SlotName+StringRegs]),
		Type: t,
	}

	switch t {
	case param.String:
		s := decodeString(regs[SlotString : SlotString+StringRegs])
		if n := int(regs[SlotStringLen]); n < len(s) {
			s = s[:n]
		}
		b.Value = paramserver.StringValue(s)
		b.Default = paramserver.StringValue(decodeString(regs[SlotDefaultString : SlotDefaultString+StringRegs]))

	case param.Bool8, param.Int64, param.Float32:
		b.Value = decodeNumeric(t, regs[SlotValue:SlotValue+NumericRegs])
		b.Default = decodeNumeric(t, regs[SlotDefault:SlotDefault+NumericRegs])
		if regs[SlotFlags]&FlagBounds != 0 {
			b.Min = narrow(decodeNumeric(t, regs[SlotMin:SlotMin+NumericRegs]))
			b.Max = narrow(decodeNumeric(t, regs[SlotMax:SlotMax+NumericRegs]))
		}
	}

	return b, nil
}

func narrow(v paramserver.Value) paramserver.NumericValue {
	return paramserver.NumericValue{Kind: v.Kind, Integer: v.Integer, Real: v.Real}
}

func decodeNumeric(t param.Type, regs []uint16) paramserver.Value {
	switch t {
	case param.Bool8:
		return paramserver.Value{Kind: paramserver.KindBoolean, Boolean: uint8(regs[0])}
	case param.Int64:
		u := uint64(regs[0])<<48 | uint64(regs[1])<<32 | uint64(regs[2])<<16 | uint64(regs[3])
		return paramserver.IntegerValue(int64(u))
	case param.Float32:
		u := uint32(regs[0])<<16 | uint32(regs[1])
		return paramserver.RealValue(math.Float32frombits(u))
	default:
		return paramserver.Value{}
	}
}

// decodeString unpacks two bytes per register and stops at the first NUL.
func decodeString(regs []uint16) string {
	b := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		b = append(b, byte(r>>8), byte(r))
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ---- writes ----

// DecodeWrite turns a register write at slot into a value for a parameter of type t.
//
// Numeric writes must cover exactly the value field of t. String writes must start
// at the string field; the registers written become the whole new string.
func DecodeWrite(t param.Type, slot int, regs []uint16) (paramserver.Value, error) {
	switch t {
	case param.Bool8, param.Int64, param.Float32:
		if slot != SlotValue || len(regs) != ValueRegs(t) {
			return paramserver.Value{}, ErrBadAddress
		}
		field := make([]uint16, NumericRegs)
		copy(field, regs)
		return decodeNumeric(t, field), nil

	case param.String:
		if slot != SlotString || len(regs) == 0 || len(regs) > StringRegs {
			return paramserver.Value{}, ErrBadAddress
		}
		return paramserver.StringValue(decodeString(regs)), nil

	default:
		return paramserver.Value{}, ErrBadAddress
	}
}

// EncodeValue lays out just the writable field of v for a parameter of type t.
// It is the client-side inverse of DecodeWrite.
func EncodeValue(t param.Type, v paramserver.Value) (slot int, regs []uint16, err error) {
	switch t {
	case param.Bool8, param.Int64, param.Float32:
		return SlotValue, encodeNumeric(t, v)[:ValueRegs(t)], nil
	case param.String:
		s := clip(v.String)
		n := (len(s) + 2) / 2 // keep a terminating NUL when there is room
		if n > StringRegs {
			n = StringRegs
		}
		return SlotString, encodeString(s)[:n], nil
	default:
		return 0, nil, ErrBadAddress
	}
}

// ---- addressing ----

// Locate splits a holding register address inside the parameter area into
// a parameter index and a slot within its block.
func Locate(addr uint16) (index, slot int, ok bool) {
	if addr >= RegCommand {
		return 0, 0, false
	}
	return int(addr) / BlockRegs, int(addr) % BlockRegs, true
}

// BlockAddr returns the first register of parameter index.
func BlockAddr(index int) uint16 {
	return uint16(index * BlockRegs)
}
