// internal/client/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/nvparam/internal/param"
	"github.com/tamzrod/nvparam/internal/paramserver"
	"github.com/tamzrod/nvparam/internal/regmap"
)

// ErrUnknownParameter is returned when a name is not served by the remote unit.
var ErrUnknownParameter = errors.New("modbus client: unknown parameter")

// Config selects the transport. Endpoint is host:port for TCP or a
// serial device path when RTU is set.
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	RTU      bool
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Client is a single connection to one parameter server unit.
// It serializes requests.
type Client struct {
	mu      sync.Mutex
	handler interface{ Close() error }
	client  modbus.Client
}

// New creates a connected client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}

	if cfg.RTU {
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if cfg.BaudRate > 0 {
			h.BaudRate = cfg.BaudRate
		}
		if cfg.DataBits > 0 {
			h.DataBits = cfg.DataBits
		}
		if cfg.StopBits > 0 {
			h.StopBits = cfg.StopBits
		}
		if cfg.Parity != "" {
			h.Parity = cfg.Parity
		}
		if err := h.Connect(); err != nil {
			return nil, err
		}
		return &Client{handler: h, client: modbus.NewClient(h)}, nil
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// Count returns the number of parameters the unit serves.
func (c *Client) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadHoldingRegisters(regmap.RegCount, 1)
	if err != nil {
		return 0, err
	}
	regs := unpackRegisters(b)
	if len(regs) != 1 {
		return 0, fmt.Errorf("modbus client: count: got %d registers", len(regs))
	}
	return int(regs[0]), nil
}

// Param reads the block of parameter index in one request.
// An index past the end yields an Empty block with no name.
func (c *Client) Param(index int) (regmap.Block, error) {
	if index < 0 || index >= regmap.MaxParams {
		return regmap.Block{}, fmt.Errorf("modbus client: index %d out of range", index)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadHoldingRegisters(regmap.BlockAddr(index), regmap.BlockRegs)
	if err != nil {
		return regmap.Block{}, err
	}
	return regmap.Decode(unpackRegisters(b))
}

// List enumerates parameters until the first unnamed block.
func (c *Client) List() ([]regmap.Block, error) {
	var out []regmap.Block
	for i := 0; i < regmap.MaxParams; i++ {
		b, err := c.Param(i)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		if b.Name == "" {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

// Find looks a parameter up by name.
func (c *Client) Find(name string) (int, regmap.Block, error) {
	blocks, err := c.List()
	if err != nil {
		return 0, regmap.Block{}, err
	}
	for i, b := range blocks {
		if b.Name == name {
			return i, b, nil
		}
	}
	return 0, regmap.Block{}, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
}

// Set writes the value field of parameter index, declared as typ.
func (c *Client) Set(index int, typ param.Type, v paramserver.Value) error {
	if index < 0 || index >= regmap.MaxParams {
		return fmt.Errorf("modbus client: index %d out of range", index)
	}

	slot, regs, err := regmap.EncodeValue(typ, v)
	if err != nil {
		return fmt.Errorf("modbus client: %s: %w", typ, err)
	}
	addr := regmap.BlockAddr(index) + uint16(slot)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(regs) == 1 {
		_, err = c.client.WriteSingleRegister(addr, regs[0])
		return err
	}
	_, err = c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

// Save asks the unit to commit its parameters to flash.
func (c *Client) Save() error { return c.command(regmap.CommandSave) }

// Erase asks the unit to reset its parameters to defaults in memory.
func (c *Client) Erase() error { return c.command(regmap.CommandErase) }

func (c *Client) command(cmd uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.client.WriteSingleRegister(regmap.RegCommand, cmd)
	return err
}

// ---- helpers (pure geometry) ----

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
