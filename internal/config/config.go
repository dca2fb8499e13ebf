// internal/config/config.go
package config

import (
	"github.com/tamzrod/nvparam/internal/flashfs"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Flash       FlashConfig       `yaml:"flash"`
	Modbus      ModbusConfig      `yaml:"modbus"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Registries  []RegistryConfig  `yaml:"registries"`
}

// ---- AMBIENT ----

type LogConfig struct {
	Level string `yaml:"level"`
}

type FlashConfig struct {
	// Path of the bbolt file backing the emulated flash.
	// Empty selects a RAM medium; state is lost on exit.
	Path string `yaml:"path"`
}

type ModbusConfig struct {
	Listen    string `yaml:"listen"` // empty disables the parameter server
	TimeoutMs int    `yaml:"timeout_ms"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables /metrics
}

type PersistenceConfig struct {
	AutosaveIntervalMs int `yaml:"autosave_interval_ms"` // 0 disables autosave
}

// ---- REGISTRY ----

type RegistryConfig struct {
	ID      string           `yaml:"id"`
	Token   uint32           `yaml:"token"`   // 0 => position + 1
	UnitID  uint8            `yaml:"unit_id"` // 0 => position + 1
	Sectors []flashfs.Sector `yaml:"sectors"` // empty => flashfs.DefaultSectorMap
	Params  []ParamConfig    `yaml:"params"`
}

// ---- PARAMETER ----

// ParamConfig is one row of the declarative parameter table.
// Min, Max and Default hold whatever scalar YAML produced; they are
// checked against Type by Validate and converted by Definitions.
type ParamConfig struct {
	Var     string `yaml:"var"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Min     any    `yaml:"min"`
	Max     any    `yaml:"max"`
	Default any    `yaml:"default"`
}
