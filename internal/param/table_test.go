// internal/param/table_test.go
package param

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTable_Indexing(t *testing.T) {
	tbl, err := NewTable(flowDefs())
	require.NoError(t, err)

	offset := 0
	for i, d := range tbl.Descriptors() {
		require.Equal(t, i, d.Index)
		require.Equal(t, offset, d.Offset)
		offset += d.Type.Size()
	}
	require.Equal(t, offset, tbl.Size())
}

func TestNewTable_Rejects(t *testing.T) {
	cases := map[string][]Definition{
		"empty list": nil,
		"version not int64": {
			{Name: "v", Type: Float32},
		},
		"duplicate name": {
			{Name: "v", Type: Int64},
			{Name: "a", Type: Bool8},
			{Name: "a", Type: Int64},
		},
		"missing name": {
			{Name: "v", Type: Int64},
			{Type: Bool8},
		},
		"default of wrong variant": {
			{Name: "v", Type: Int64},
			{Name: "a", Type: Bool8, Default: Int64Value(1)},
		},
		"bound of wrong variant": {
			{Name: "v", Type: Int64},
			{Name: "a", Type: Float32, Max: Int64Value(3)},
		},
		"unknown type tag": {
			{Name: "v", Type: Int64},
			{Name: "a", Type: Type(9)},
		},
	}

	for name, defs := range cases {
		if _, err := NewTable(defs); err == nil {
			t.Fatalf("%s: expected error, got nil", name)
		}
	}
}

func TestNewTable_StringDefaultTruncatedAndBoundsDropped(t *testing.T) {
	tbl, err := NewTable([]Definition{
		{Name: "v", Type: Int64, Default: Int64Value(1)},
		{Name: "s", Type: String, Min: StringValue("x"), Default: StringValue(strings.Repeat("z", 100))},
	})
	require.NoError(t, err)

	d, ok := tbl.Descriptor(1)
	require.True(t, ok)
	require.Len(t, d.Default.Text(), MaxStringLen)
	require.Equal(t, StringValue(""), d.Min)
	require.Equal(t, StringValue(""), d.Max)
}

func TestNewTable_UnsetBoundsAreZero(t *testing.T) {
	tbl, err := NewTable([]Definition{
		{Name: "v", Type: Int64},
	})
	require.NoError(t, err)

	d, _ := tbl.Descriptor(0)
	require.Equal(t, Int64Value(0), d.Min)
	require.Equal(t, Int64Value(0), d.Max)
	require.Equal(t, Int64Value(0), d.Default)
}

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"int64":          Int64,
		"uavcan_int64":   Int64,
		"UAVCAN_UINT8":   Bool8,
		"bool8":          Bool8,
		"float32":        Float32,
		" string ":       String,
		"uavcan_float32": Float32,
		"empty":          Empty,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseType("double")
	require.Error(t, err)
}
