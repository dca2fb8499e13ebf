// internal/param/table.go
package param

import (
	"errors"
	"fmt"
)

// VersionIndex is the reserved index of the schema version parameter.
const VersionIndex = 0

// Definition is one entry of a declarative parameter specification.
type Definition struct {
	Var     string
	Name    string
	Type    Type
	Min     Value
	Max     Value
	Default Value
}

// Descriptor is the immutable identity of one parameter.
// Offset locates the live value inside the Value Store; the descriptor never owns it.
type Descriptor struct {
	Index   int
	Var     string
	Name    string
	Type    Type
	Min     Value
	Max     Value
	Default Value
	Offset  int
}

// Table is the ordered, read-only descriptor table of one registry.
type Table struct {
	descs []Descriptor
	size  int
}

// NewTable builds the descriptor table and the Value Store layout from defs.
// Index is the declaration position; values are packed in that order.
func NewTable(defs []Definition) (*Table, error) {
	if len(defs) == 0 {
		return nil, errors.New("param: at least one definition required")
	}
	if defs[VersionIndex].Type != Int64 {
		return nil, fmt.Errorf(
			"param: definition %d (%q) must be the int64 version parameter, got %s",
			VersionIndex, defs[VersionIndex].Name, defs[VersionIndex].Type,
		)
	}

	t := &Table{descs: make([]Descriptor, 0, len(defs))}
	seen := make(map[string]int, len(defs))

	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("param: definition %d has no name", i)
		}
		if prev, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("param: duplicate name %q (definitions %d and %d)", d.Name, prev, i)
		}
		seen[d.Name] = i

		if !d.Type.Valid() {
			return nil, fmt.Errorf("param: %q: %w: %s", d.Name, ErrTypeMismatch, d.Type)
		}

		desc := Descriptor{
			Index:  i,
			Var:    d.Var,
			Name:   d.Name,
			Type:   d.Type,
			Offset: t.size,
		}

		var err error
		if desc.Default, err = fitValue(d.Type, d.Default, "default"); err != nil {
			return nil, fmt.Errorf("param: %q: %w", d.Name, err)
		}

		// Bounds of strings carry no meaning.
		if d.Type == String {
			desc.Min, desc.Max = StringValue(""), StringValue("")
		} else {
			if desc.Min, err = fitValue(d.Type, d.Min, "min"); err != nil {
				return nil, fmt.Errorf("param: %q: %w", d.Name, err)
			}
			if desc.Max, err = fitValue(d.Type, d.Max, "max"); err != nil {
				return nil, fmt.Errorf("param: %q: %w", d.Name, err)
			}
		}

		t.descs = append(t.descs, desc)
		t.size += d.Type.Size()
	}

	return t, nil
}

// fitValue checks v against typ. An unset value becomes the zero value of typ.
func fitValue(typ Type, v Value, what string) (Value, error) {
	if v.Type() == Empty {
		return zeroValue(typ), nil
	}
	if v.Type() != typ {
		return Value{}, fmt.Errorf("%s is %s, want %s: %w", what, v.Type(), typ, ErrTypeMismatch)
	}
	if typ == String {
		return StringValue(truncateString(v.Text())), nil
	}
	return v, nil
}

func zeroValue(typ Type) Value {
	switch typ {
	case Bool8:
		return Bool8Value(0)
	case Int64:
		return Int64Value(0)
	case Float32:
		return Float32Value(0)
	case String:
		return StringValue("")
	default:
		return EmptyValue()
	}
}

// Len returns N, the number of descriptors.
func (t *Table) Len() int { return len(t.descs) }

// Size returns the byte size of the Value Store.
func (t *Table) Size() int { return t.size }

// Descriptor returns the descriptor at index.
func (t *Table) Descriptor(index int) (Descriptor, bool) {
	if index < 0 || index >= len(t.descs) {
		return Descriptor{}, false
	}
	return t.descs[index], true
}

// Descriptors returns a copy of all descriptors in index order.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, len(t.descs))
	copy(out, t.descs)
	return out
}

// CompiledVersion is the default of the version parameter.
func (t *Table) CompiledVersion() int64 {
	return t.descs[VersionIndex].Default.Int64()
}

func (t *Table) lookup(name string) int {
	for i := range t.descs {
		if t.descs[i].Name == name {
			return i
		}
	}
	return -1
}
