// internal/config/normalize.go
package config

import (
	"github.com/tamzrod/nvparam/internal/flashfs"
	"github.com/tamzrod/nvparam/internal/param"
)

// DefaultModbusTimeoutMs is the idle connection timeout applied when none is set.
const DefaultModbusTimeoutMs = 2000

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Modbus.TimeoutMs == 0 {
		cfg.Modbus.TimeoutMs = DefaultModbusTimeoutMs
	}

	for ri := range cfg.Registries {
		r := &cfg.Registries[ri]

		if r.Token == 0 {
			r.Token = uint32(ri + 1)
		}
		r.UnitID = effectiveUnitID(*r, ri)

		// Each registry owns its sectors; the default map is copied.
		if len(flashfs.Trim(r.Sectors)) == 0 {
			r.Sectors = append([]flashfs.Sector(nil), flashfs.Trim(flashfs.DefaultSectorMap)...)
		} else {
			r.Sectors = flashfs.Trim(r.Sectors)
		}

		for pi := range r.Params {
			p := &r.Params[pi]

			// Canonical type names:
			// - aliases ("bool", "int", "uavcan_float32", ...) already validated
			if typ, err := param.ParseType(p.Type); err == nil {
				p.Type = typ.String()
			}

			// Truncate string defaults to the stored capacity
			if s, ok := p.Default.(string); ok && len(s) > param.MaxStringLen {
				p.Default = s[:param.MaxStringLen]
			}
		}
	}
}
