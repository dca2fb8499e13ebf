// internal/regmap/constants.go
package regmap

// Parameter block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// BlockRegs is the fixed number of holding registers per parameter.
const BlockRegs = 120

// MaxParams is the number of parameter blocks that fit below the control area.
const MaxParams = int(RegCommand) / BlockRegs

// ---- SLOT INDICES ----

// SlotType holds the type tag.
const SlotType = 0

// SlotStringLen holds the byte length of the current string value.
const SlotStringLen = 1

// SlotValue is the first register of the numeric value.
const SlotValue = 2

// SlotString is the first register of the string value.
const SlotString = 6

// SlotDefault is the first register of the numeric default.
const SlotDefault = 38

// SlotMin is the first register of the numeric minimum.
const SlotMin = 42

// SlotMax is the first register of the numeric maximum.
const SlotMax = 46

// SlotFlags holds the flag bits.
const SlotFlags = 50

// SlotDefaultString is the first register of the string default.
const SlotDefaultString = 51

// SlotName is the first register of the parameter name.
const SlotName = 83

// ---- RESERVED RANGE ----

// Slots 115–119 are reserved and read as zero.
const SlotReservedStart = 115
const SlotReservedEnd = 119

// ---- FIELD WIDTHS ----

// NumericRegs is the width of every numeric field.
const NumericRegs = 4

// StringRegs is the width of every string field: 64 bytes, two per register.
const StringRegs = 32

// StringMaxChars is the number of bytes a string field carries.
const StringMaxChars = StringRegs * 2

// ---- TYPE TAGS ----

const (
	TagEmpty   uint16 = 0
	TagBool8   uint16 = 1
	TagInt64   uint16 = 2
	TagFloat32 uint16 = 3
	TagString  uint16 = 4
)

// ---- FLAGS ----

// FlagBounds is set when the min/max fields carry meaning.
const FlagBounds uint16 = 1 << 0

// ---- CONTROL AREA ----

// RegCommand accepts a single command word.
const RegCommand uint16 = 0xFF00

// RegCount holds the number of parameters (read only).
const RegCount uint16 = 0xFF01

// ControlRegs is the size of the control area.
const ControlRegs = 2

// CommandSave commits the value store ("SA").
const CommandSave uint16 = 0x5341

// CommandErase resets every parameter to its default in memory ("ER").
const CommandErase uint16 = 0x4552
