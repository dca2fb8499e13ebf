// internal/config/definitions.go
package config

import (
	"fmt"
	"math"

	"github.com/tamzrod/nvparam/internal/param"
)

// Definitions converts a registry's parameter rows into table definitions.
func Definitions(rc RegistryConfig) ([]param.Definition, error) {
	defs := make([]param.Definition, 0, len(rc.Params))

	for i, p := range rc.Params {
		typ, err := param.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("registry %q: param %d (%q): %w", rc.ID, i, p.Name, err)
		}

		d := param.Definition{Var: p.Var, Name: p.Name, Type: typ}

		if d.Default, err = toValue(typ, p.Default); err != nil {
			return nil, fmt.Errorf("registry %q: param %q: default: %w", rc.ID, p.Name, err)
		}
		if typ != param.String {
			if d.Min, err = toValue(typ, p.Min); err != nil {
				return nil, fmt.Errorf("registry %q: param %q: min: %w", rc.ID, p.Name, err)
			}
			if d.Max, err = toValue(typ, p.Max); err != nil {
				return nil, fmt.Errorf("registry %q: param %q: max: %w", rc.ID, p.Name, err)
			}
		}

		defs = append(defs, d)
	}

	return defs, nil
}

// toValue converts a decoded YAML scalar onto typ. A missing scalar yields
// the empty value, which the table turns into the zero value of typ.
func toValue(typ param.Type, raw any) (param.Value, error) {
	if raw == nil {
		return param.EmptyValue(), nil
	}

	switch typ {
	case param.Bool8:
		if b, ok := raw.(bool); ok {
			return param.BoolValue(b), nil
		}
		n, ok := asInt(raw)
		if !ok || n < 0 || n > math.MaxUint8 {
			return param.Value{}, fmt.Errorf("%v is not a bool8", raw)
		}
		return param.Bool8Value(uint8(n)), nil

	case param.Int64:
		n, ok := asInt(raw)
		if !ok {
			return param.Value{}, fmt.Errorf("%v is not an integer", raw)
		}
		return param.Int64Value(n), nil

	case param.Float32:
		switch v := raw.(type) {
		case float64:
			return param.Float32Value(float32(v)), nil
		}
		n, ok := asInt(raw)
		if !ok {
			return param.Value{}, fmt.Errorf("%v is not a number", raw)
		}
		return param.Float32Value(float32(n)), nil

	case param.String:
		s, ok := raw.(string)
		if !ok {
			return param.Value{}, fmt.Errorf("%v is not a string", raw)
		}
		return param.StringValue(s), nil

	default:
		return param.Value{}, fmt.Errorf("type %s carries no value", typ)
	}
}

func asInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}
