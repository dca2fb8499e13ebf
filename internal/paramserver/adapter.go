// internal/paramserver/adapter.go
package paramserver

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tamzrod/nvparam/internal/param"
)

// Saver commits the value store to non-volatile storage.
type Saver interface {
	Save() error
}

// Adapter maps the remote parameter protocol's name/value vocabulary onto a registry.
// It is a translation layer only: no lock, no state of its own.
//
// Unknown names are silent no-ops on set and get. A remote client naming a
// parameter this node does not have observes no effect, not a protocol error.
type Adapter struct {
	reg   *param.Registry
	saver Saver
	log   *zap.Logger
}

// New creates an adapter. A nil saver makes SaveAll fail; a nil logger disables logging.
func New(reg *param.Registry, saver Saver, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{reg: reg, saver: saver, log: log}
}

// Count returns the number of parameters.
func (a *Adapter) Count() int { return a.reg.Len() }

// NameAt returns the name at index, or "" when index is out of range.
// The empty name ends the remote enumeration.
func (a *Adapter) NameAt(index int) string {
	name, err := a.reg.NameOf(index)
	if err != nil {
		return ""
	}
	return name
}

// TypeOf returns the declared type of name.
func (a *Adapter) TypeOf(name string) (param.Type, bool) {
	_, typ, err := a.reg.IndexAndTypeOf(name)
	if err != nil {
		return param.Empty, false
	}
	return typ, true
}

// SetByName projects v onto the parameter's type and writes it.
func (a *Adapter) SetByName(name string, v Value) {
	index, typ, err := a.reg.IndexAndTypeOf(name)
	if err != nil {
		a.log.Debug("set: unknown parameter ignored", zap.String("name", name))
		return
	}

	tv, ok := project(typ, v)
	if !ok {
		a.log.Debug("set: value kind does not fit parameter, ignored",
			zap.String("name", name),
			zap.Stringer("type", typ),
			zap.Stringer("kind", v.Kind),
		)
		return
	}

	if err := a.reg.Write(index, tv); err != nil {
		a.log.Warn("set failed", zap.String("name", name), zap.Error(err))
	}
}

// GetByName reads the current value into out. Unknown names leave out untouched.
func (a *Adapter) GetByName(name string, out *Value) {
	v, err := a.reg.ReadByName(name)
	if err != nil {
		return
	}
	*out = generic(v)
}

// DefaultsAndBoundsByName reports the default and, for numeric types, max and min.
// Bool8 and String parameters report a default only.
func (a *Adapter) DefaultsAndBoundsByName(name string, outDefault *Value, outMax, outMin *NumericValue) {
	def, min, max, err := a.reg.DefaultAndBoundsByName(name)
	if err != nil {
		return
	}

	*outDefault = generic(def)

	switch def.Type() {
	case param.Int64, param.Float32:
		*outMax = numeric(max)
		*outMin = numeric(min)
	}
}

// SaveAll commits the value store.
func (a *Adapter) SaveAll() error {
	if a.saver == nil {
		return errors.New("paramserver: no saver configured")
	}
	return a.saver.Save()
}

// EraseAll resets every parameter to its default in memory only.
// A following SaveAll persists the reset.
func (a *Adapter) EraseAll() error {
	a.reg.ResetAllToDefault()
	return nil
}

// ---- projections ----

// project converts a generic value onto typ. Numeric kinds convert among
// themselves; strings only fit strings.
func project(typ param.Type, v Value) (param.Value, bool) {
	switch typ {
	case param.Bool8:
		switch v.Kind {
		case KindBoolean:
			return param.Bool8Value(v.Boolean), true
		case KindInteger:
			return param.BoolValue(v.Integer != 0), true
		case KindReal:
			return param.BoolValue(v.Real != 0), true
		}
	case param.Int64:
		switch v.Kind {
		case KindInteger:
			return param.Int64Value(v.Integer), true
		case KindBoolean:
			return param.Int64Value(int64(v.Boolean)), true
		case KindReal:
			return param.Int64Value(int64(v.Real)), true
		}
	case param.Float32:
		switch v.Kind {
		case KindReal:
			return param.Float32Value(v.Real), true
		case KindInteger:
			return param.Float32Value(float32(v.Integer)), true
		case KindBoolean:
			return param.Float32Value(float32(v.Boolean)), true
		}
	case param.String:
		if v.Kind == KindString {
			return param.StringValue(v.String), true
		}
	}
	return param.Value{}, false
}

func generic(v param.Value) Value {
	switch v.Type() {
	case param.Bool8:
		return Value{Kind: KindBoolean, Boolean: v.Uint8()}
	case param.Int64:
		return IntegerValue(v.Int64())
	case param.Float32:
		return RealValue(v.Float32())
	case param.String:
		return StringValue(v.Text())
	default:
		return Value{}
	}
}

func numeric(v param.Value) NumericValue {
	switch v.Type() {
	case param.Int64:
		return NumericValue{Kind: KindInteger, Integer: v.Int64()}
	case param.Float32:
		return NumericValue{Kind: KindReal, Real: v.Float32()}
	default:
		return NumericValue{}
	}
}
