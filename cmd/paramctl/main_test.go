// cmd/paramctl/main_test.go
package main

import (
	"strings"
	"testing"

	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		typ  param.Type
		raw  string
		want paramserver.Value
	}{
		{param.Bool8, "true", paramserver.BooleanValue(true)},
		{param.Bool8, "0", paramserver.BooleanValue(false)},
		{param.Bool8, "7", paramserver.Value{Kind: paramserver.KindBoolean, Boolean: 7}},
		{param.Int64, "-12", paramserver.IntegerValue(-12)},
		{param.Int64, "0x10", paramserver.IntegerValue(16)},
		{param.Float32, "2.5", paramserver.RealValue(2.5)},
		{param.String, "hello world", paramserver.StringValue("hello world")},
	}

	for _, tc := range cases {
		got, err := parseValue(tc.typ, tc.raw)
		if err != nil {
			t.Fatalf("%s %q: %v", tc.typ, tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%s %q: got=%+v want=%+v", tc.typ, tc.raw, got, tc.want)
		}
	}
}

func TestParseValue_Rejects(t *testing.T) {
	cases := []struct {
		typ param.Type
		raw string
	}{
		{param.Bool8, "maybe"},
		{param.Bool8, "300"},
		{param.Int64, "1.5"},
		{param.Float32, "pi"},
		{param.String, strings.Repeat("x", 65)},
		{param.Empty, "1"},
	}
	for _, tc := range cases {
		if _, err := parseValue(tc.typ, tc.raw); err == nil {
			t.Fatalf("%s %q: expected error", tc.typ, tc.raw)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue(param.Float32, paramserver.RealValue(2.1)); got != "2.1" {
		t.Fatalf("float: got=%q want=2.1", got)
	}
	if got := formatValue(param.String, paramserver.StringValue("a b")); got != `"a b"` {
		t.Fatalf("string: got=%q", got)
	}
	if got := formatNumeric(paramserver.NumericValue{}); got != "-" {
		t.Fatalf("empty numeric: got=%q", got)
	}
}
