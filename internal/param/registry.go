// internal/param/registry.go
package param

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Registry owns one Value Store and gives typed access to it through the table.
// It holds no lock; callers serialize access.
type Registry struct {
	table *Table
	block []byte
}

// New allocates the Value Store for t and fills it with defaults.
// The block is never reallocated afterwards.
func New(t *Table) *Registry {
	r := &Registry{
		table: t,
		block: make([]byte, t.Size()),
	}
	r.ResetAllToDefault()
	return r
}

func (r *Registry) Table() *Table { return r.table }

func (r *Registry) Len() int { return r.table.Len() }

// ------------------------------------------------------------
// BY INDEX
// ------------------------------------------------------------

// NameOf returns the name of the parameter at index.
func (r *Registry) NameOf(index int) (string, error) {
	d, ok := r.table.Descriptor(index)
	if !ok {
		return "", ErrNotFound
	}
	return d.Name, nil
}

// IndexAndTypeOf resolves name by linear scan.
func (r *Registry) IndexAndTypeOf(name string) (int, Type, error) {
	i := r.table.lookup(name)
	if i < 0 {
		return 0, Empty, ErrNotFound
	}
	return i, r.table.descs[i].Type, nil
}

// Read returns the current value at index. The tag comes from the descriptor.
func (r *Registry) Read(index int) (Value, error) {
	d, ok := r.table.Descriptor(index)
	if !ok {
		return Value{}, ErrNotFound
	}
	return decodeField(d.Type, r.block[d.Offset:d.Offset+d.Type.Size()])
}

// Write overwrites the live value at index in place.
// Strings longer than MaxStringLen are truncated. Scalars are stored verbatim;
// Min and Max are advisory and never enforced here.
func (r *Registry) Write(index int, v Value) error {
	d, ok := r.table.Descriptor(index)
	if !ok {
		return ErrNotFound
	}
	if v.Type() != d.Type {
		return fmt.Errorf("param: %q is %s, got %s: %w", d.Name, d.Type, v.Type(), ErrTypeMismatch)
	}
	return encodeField(r.block[d.Offset:d.Offset+d.Type.Size()], v)
}

// ReadDefaultAndBounds returns the compiled default, min and max at index.
func (r *Registry) ReadDefaultAndBounds(index int) (def, min, max Value, err error) {
	d, ok := r.table.Descriptor(index)
	if !ok {
		return Value{}, Value{}, Value{}, ErrNotFound
	}
	return d.Default, d.Min, d.Max, nil
}

// ResetAllToDefault overwrites every live value with its default, in index order.
func (r *Registry) ResetAllToDefault() {
	for _, d := range r.table.descs {
		// Empty descriptors occupy no bytes; nothing to reset.
		if d.Type.Size() == 0 {
			continue
		}
		_ = encodeField(r.block[d.Offset:d.Offset+d.Type.Size()], d.Default)
	}
}

// ------------------------------------------------------------
// BY NAME
// ------------------------------------------------------------

func (r *Registry) ReadByName(name string) (Value, error) {
	i, _, err := r.IndexAndTypeOf(name)
	if err != nil {
		return Value{}, err
	}
	return r.Read(i)
}

func (r *Registry) WriteByName(name string, v Value) error {
	i, _, err := r.IndexAndTypeOf(name)
	if err != nil {
		return err
	}
	return r.Write(i, v)
}

func (r *Registry) DefaultAndBoundsByName(name string) (def, min, max Value, err error) {
	i, _, err := r.IndexAndTypeOf(name)
	if err != nil {
		return Value{}, Value{}, Value{}, err
	}
	return r.ReadDefaultAndBounds(i)
}

// ------------------------------------------------------------
// VALUE STORE IMAGE
// ------------------------------------------------------------

// Image returns the live Value Store block. Writes through it are writes to the registry.
func (r *Registry) Image() []byte { return r.block }

// Size returns the byte size of the Value Store.
func (r *Registry) Size() int { return len(r.block) }

// Snapshot returns a copy of the Value Store block.
func (r *Registry) Snapshot() []byte {
	out := make([]byte, len(r.block))
	copy(out, r.block)
	return out
}

// Load replaces the Value Store with data. The size must match exactly.
func (r *Registry) Load(data []byte) error {
	if len(data) != len(r.block) {
		return fmt.Errorf("param: image size %d, want %d", len(data), len(r.block))
	}
	copy(r.block, data)
	return nil
}

// Version returns the live schema version field.
func (r *Registry) Version() int64 {
	v, _ := r.VersionOf(r.block)
	return v
}

// CompiledVersion returns the default of the version parameter.
func (r *Registry) CompiledVersion() int64 { return r.table.CompiledVersion() }

// VersionOf decodes the version field of a foreign image laid out like this registry.
func (r *Registry) VersionOf(image []byte) (int64, bool) {
	d := r.table.descs[VersionIndex]
	end := d.Offset + d.Type.Size()
	if len(image) < end {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(image[d.Offset:end])), true
}

// ---- field codec (little-endian, strings NUL padded) ----

func decodeField(typ Type, b []byte) (Value, error) {
	switch typ {
	case Bool8:
		return Bool8Value(b[0]), nil
	case Int64:
		return Int64Value(int64(binary.LittleEndian.Uint64(b))), nil
	case Float32:
		return Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case String:
		n := 0
		for n < len(b)-1 && b[n] != 0 {
			n++
		}
		return StringValue(string(b[:n])), nil
	default:
		return Value{}, ErrTypeMismatch
	}
}

func encodeField(b []byte, v Value) error {
	switch v.Type() {
	case Bool8:
		b[0] = v.Uint8()
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v.Int64()))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.Float32()))
	case String:
		s := truncateString(v.Text())
		n := copy(b, s)
		for i := n; i < len(b); i++ {
			b[i] = 0
		}
	default:
		return ErrTypeMismatch
	}
	return nil
}
