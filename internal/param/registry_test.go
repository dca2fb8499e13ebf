// internal/param/registry_test.go
package param

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// flowDefs mirrors the flow node's parameter table.
func flowDefs() []Definition {
	return []Definition{
		{Var: "version", Name: "flow.param_version", Type: Int64, Min: Int64Value(0), Max: Int64Value(100), Default: Int64Value(100)},
		{Var: "test_bool", Name: "flow.int_bool", Type: Bool8, Min: Bool8Value(0), Max: Bool8Value(1), Default: Bool8Value(1)},
		{Var: "test_int", Name: "flow.int_test", Type: Int64, Min: Int64Value(-12), Max: Int64Value(12), Default: Int64Value(6)},
		{Var: "test_float", Name: "flow.float_test", Type: Float32, Min: Float32Value(1.412), Max: Float32Value(4.2), Default: Float32Value(2.1)},
		{Var: "test_string", Name: "flow.string_test", Type: String, Default: StringValue("default_value")},
	}
}

func newFlowRegistry(t *testing.T) *Registry {
	t.Helper()
	tbl, err := NewTable(flowDefs())
	require.NoError(t, err)
	return New(tbl)
}

func TestRegistry_Layout(t *testing.T) {
	r := newFlowRegistry(t)

	// version(8) + bool(1) + int(8) + float(4) + string(65)
	if r.Size() != 86 {
		t.Fatalf("size mismatch: got=%d want=86", r.Size())
	}
	require.Equal(t, 5, r.Len())
	require.EqualValues(t, 100, r.CompiledVersion())
	require.EqualValues(t, 100, r.Version())
}

func TestRegistry_RoundTrip(t *testing.T) {
	r := newFlowRegistry(t)

	cases := []struct {
		index int
		v     Value
	}{
		{0, Int64Value(42)},
		{1, BoolValue(false)},
		{1, Bool8Value(7)},
		{2, Int64Value(-9000)},
		{3, Float32Value(3.25)},
		{4, StringValue("")},
		{4, StringValue("hello")},
		{4, StringValue(strings.Repeat("x", MaxStringLen))},
	}

	for _, tc := range cases {
		require.NoError(t, r.Write(tc.index, tc.v))
		got, err := r.Read(tc.index)
		require.NoError(t, err)
		require.Equal(t, tc.v, got, "index %d", tc.index)
	}
}

func TestRegistry_WriteDoesNotClampToBounds(t *testing.T) {
	r := newFlowRegistry(t)

	require.NoError(t, r.Write(2, Int64Value(1000)))
	got, err := r.Read(2)
	require.NoError(t, err)
	require.EqualValues(t, 1000, got.Int64())
}

func TestRegistry_StringTruncation(t *testing.T) {
	r := newFlowRegistry(t)

	long := strings.Repeat("a", StringCapacity) + "tail"
	require.NoError(t, r.Write(4, StringValue(long)))

	got, err := r.Read(4)
	require.NoError(t, err)
	require.Len(t, got.Text(), MaxStringLen)
	require.Equal(t, long[:MaxStringLen], got.Text())

	// Terminator is in place and nothing spilled past the field.
	d, _ := r.Table().Descriptor(4)
	img := r.Image()
	require.Equal(t, byte(0), img[d.Offset+StringCapacity-1])
	require.Equal(t, d.Offset+StringCapacity, len(img))
}

func TestRegistry_ShorterStringClearsTail(t *testing.T) {
	r := newFlowRegistry(t)

	require.NoError(t, r.Write(4, StringValue("a much longer value")))
	require.NoError(t, r.Write(4, StringValue("ab")))

	got, err := r.Read(4)
	require.NoError(t, err)
	require.Equal(t, "ab", got.Text())
}

func TestRegistry_UnknownIndexAndName(t *testing.T) {
	r := newFlowRegistry(t)
	before := r.Snapshot()

	_, err := r.Read(5)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Read(-1)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Write(5, Int64Value(1)), ErrNotFound)
	_, err = r.NameOf(5)
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = r.IndexAndTypeOf("unknown.name")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.WriteByName("unknown.name", BoolValue(true)), ErrNotFound)
	_, _, _, err = r.ReadDefaultAndBounds(99)
	require.ErrorIs(t, err, ErrNotFound)

	if !bytes.Equal(before, r.Image()) {
		t.Fatalf("value store changed on failed lookups")
	}
}

func TestRegistry_WrongVariantRejected(t *testing.T) {
	r := newFlowRegistry(t)
	before := r.Snapshot()

	err := r.Write(2, StringValue("6"))
	require.True(t, errors.Is(err, ErrTypeMismatch), "err=%v", err)
	require.Equal(t, before, r.Image())
}

func TestRegistry_EmptyDescriptorIsTypeMismatch(t *testing.T) {
	defs := append(flowDefs(), Definition{Name: "flow.placeholder", Type: Empty})
	tbl, err := NewTable(defs)
	require.NoError(t, err)
	r := New(tbl)

	_, err = r.Read(5)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.ErrorIs(t, r.Write(5, EmptyValue()), ErrTypeMismatch)
}

func TestRegistry_ByName(t *testing.T) {
	r := newFlowRegistry(t)

	i, typ, err := r.IndexAndTypeOf("flow.float_test")
	require.NoError(t, err)
	require.Equal(t, 3, i)
	require.Equal(t, Float32, typ)

	name, err := r.NameOf(3)
	require.NoError(t, err)
	require.Equal(t, "flow.float_test", name)

	require.NoError(t, r.WriteByName("flow.int_bool", BoolValue(true)))
	v, err := r.ReadByName("flow.int_bool")
	require.NoError(t, err)
	require.True(t, v.Bool())

	def, min, max, err := r.DefaultAndBoundsByName("flow.int_test")
	require.NoError(t, err)
	require.Equal(t, Int64Value(6), def)
	require.Equal(t, Int64Value(-12), min)
	require.Equal(t, Int64Value(12), max)
}

func TestRegistry_ResetAllToDefault(t *testing.T) {
	r := newFlowRegistry(t)

	require.NoError(t, r.Write(0, Int64Value(1)))
	require.NoError(t, r.Write(1, Bool8Value(0)))
	require.NoError(t, r.Write(2, Int64Value(11)))
	require.NoError(t, r.Write(3, Float32Value(4.0)))
	require.NoError(t, r.Write(4, StringValue("changed")))

	r.ResetAllToDefault()

	for _, d := range r.Table().Descriptors() {
		got, err := r.Read(d.Index)
		require.NoError(t, err)
		if got != d.Default {
			t.Fatalf("index %d not reset: got=%v want=%v", d.Index, got, d.Default)
		}
	}
}

func TestRegistry_LoadAndVersionOf(t *testing.T) {
	r := newFlowRegistry(t)
	other := newFlowRegistry(t)

	require.NoError(t, other.Write(0, Int64Value(7)))
	require.NoError(t, other.Write(4, StringValue("persisted")))

	v, ok := r.VersionOf(other.Image())
	require.True(t, ok)
	require.EqualValues(t, 7, v)

	require.NoError(t, r.Load(other.Snapshot()))
	require.Equal(t, other.Image(), r.Image())
	require.EqualValues(t, 7, r.Version())

	require.Error(t, r.Load(make([]byte, 3)))
	_, ok = r.VersionOf(make([]byte, 3))
	require.False(t, ok)
}

func TestRegistry_IndependentInstances(t *testing.T) {
	a := newFlowRegistry(t)
	b := newFlowRegistry(t)

	require.NoError(t, a.Write(2, Int64Value(-1)))
	got, err := b.Read(2)
	require.NoError(t, err)
	require.EqualValues(t, 6, got.Int64())
}
