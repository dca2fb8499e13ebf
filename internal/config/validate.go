// internal/config/validate.go
package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/nvparam/internal/flashfs"
	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/regmap"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// AMBIENT
	// ------------------------------------------------------------

	if cfg.Log.Level != "" {
		if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	if cfg.Modbus.TimeoutMs < 0 {
		return fmt.Errorf("modbus.timeout_ms must be >= 0")
	}
	if cfg.Persistence.AutosaveIntervalMs < 0 {
		return fmt.Errorf("persistence.autosave_interval_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// REGISTRIES
	// ------------------------------------------------------------

	if len(cfg.Registries) == 0 {
		return fmt.Errorf("at least one registry is required")
	}

	ids := make(map[string]int)
	units := make(map[uint8]string)

	for ri, r := range cfg.Registries {
		if r.ID == "" {
			return fmt.Errorf("registry %d: id is required", ri)
		}
		if prev, exists := ids[r.ID]; exists {
			return fmt.Errorf("registry id %q used by registries %d and %d", r.ID, prev, ri)
		}
		ids[r.ID] = ri

		// unit id collision is checked on the effective id
		unit := effectiveUnitID(r, ri)
		if prev, exists := units[unit]; exists {
			return fmt.Errorf("unit_id collision: unit_id=%d used by registries %q and %q", unit, prev, r.ID)
		}
		units[unit] = r.ID

		if len(r.Sectors) > 0 {
			if err := flashfs.CheckSectors(flashfs.Trim(r.Sectors)); err != nil {
				return fmt.Errorf("registry %q: %w", r.ID, err)
			}
		}

		if err := validateParams(r); err != nil {
			return err
		}
	}

	return nil
}

func validateParams(r RegistryConfig) error {
	if len(r.Params) == 0 {
		return fmt.Errorf("registry %q: at least one param is required", r.ID)
	}
	if len(r.Params) > regmap.MaxParams {
		return fmt.Errorf("registry %q: %d params exceed the register map limit of %d",
			r.ID, len(r.Params), regmap.MaxParams)
	}

	for i, p := range r.Params {
		// name sanity (printable ASCII, fits the register map)
		if len(p.Name) > param.MaxStringLen {
			return fmt.Errorf("registry %q: param %d: name longer than %d characters",
				r.ID, i, param.MaxStringLen)
		}
		for j := 0; j < len(p.Name); j++ {
			if p.Name[j] < 0x20 || p.Name[j] > 0x7E {
				return fmt.Errorf("registry %q: param %d: name must contain printable ASCII characters only",
					r.ID, i)
			}
		}
	}

	// Table construction owns the remaining rules:
	// version first, unique names, values matching types.
	defs, err := Definitions(r)
	if err != nil {
		return err
	}
	if _, err := param.NewTable(defs); err != nil {
		return fmt.Errorf("registry %q: %w", r.ID, err)
	}
	return nil
}

func effectiveUnitID(r RegistryConfig, position int) uint8 {
	if r.UnitID != 0 {
		return r.UnitID
	}
	return uint8(position + 1)
}
