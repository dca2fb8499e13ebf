// internal/server/modbus/handler.go
package modbus

import (
	"encoding/binary"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/tamzrod/nvparam/internal/regmap"
)

// Handle answers one request PDU for unitID.
// No IO. Safe for concurrent use; requests to one unit are serialized by its lock.
func (s *Server) Handle(unitID uint8, req *modbus.ProtocolDataUnit) *modbus.ProtocolDataUnit {
	var (
		data []byte
		exc  byte
	)

	u, ok := s.units[unitID]
	if !ok {
		exc = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
	} else {
		u.Lock.Lock()
		switch req.FunctionCode {
		case modbus.FuncCodeReadHoldingRegisters:
			data, exc = s.readHolding(u, req.Data)
		case modbus.FuncCodeWriteSingleRegister:
			data, exc = s.writeSingle(u, req.Data)
		case modbus.FuncCodeWriteMultipleRegisters:
			data, exc = s.writeMultiple(u, req.Data)
		default:
			exc = modbus.ExceptionCodeIllegalFunction
		}
		u.Lock.Unlock()
	}

	s.metrics.ObserveModbus(req.FunctionCode, exc)

	if exc != 0 {
		s.log.Debug("modbus exception",
			zap.Uint8("unit", unitID),
			zap.Uint8("function", req.FunctionCode),
			zap.Uint8("exception", exc),
		)
		return &modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode | 0x80, Data: []byte{exc}}
	}
	return &modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: data}
}

// ---- function handlers ----

// FC3 request: Address(2) Quantity(2)
// FC3 response: ByteCount(1) Registers(2*n)
func (s *Server) readHolding(u Unit, data []byte) ([]byte, byte) {
	if len(data) != 4 {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	qty := binary.BigEndian.Uint16(data[2:4])

	if qty == 0 || qty > maxReadQty {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	end := int(addr) + int(qty)
	if end > int(regmap.RegCount)+1 {
		return nil, modbus.ExceptionCodeIllegalDataAddress
	}

	out := make([]byte, 1+2*int(qty))
	out[0] = byte(2 * qty)

	blocks := make(map[int][]uint16)
	for i := 0; i < int(qty); i++ {
		r := s.registerAt(u, uint16(int(addr)+i), blocks)
		binary.BigEndian.PutUint16(out[1+2*i:], r)
	}
	return out, 0
}

// FC6 request and response: Address(2) Value(2)
func (s *Server) writeSingle(u Unit, data []byte) ([]byte, byte) {
	if len(data) != 4 {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	val := binary.BigEndian.Uint16(data[2:4])

	if exc := s.write(u, addr, []uint16{val}); exc != 0 {
		return nil, exc
	}
	return data, 0
}

// FC16 request: Address(2) Quantity(2) ByteCount(1) Registers(2*n)
// FC16 response: Address(2) Quantity(2)
func (s *Server) writeMultiple(u Unit, data []byte) ([]byte, byte) {
	if len(data) < 5 {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	qty := binary.BigEndian.Uint16(data[2:4])
	byteCount := int(data[4])

	if qty == 0 || qty > maxWriteQty || byteCount != 2*int(qty) || len(data)-5 != byteCount {
		return nil, modbus.ExceptionCodeIllegalDataValue
	}
	if int(addr)+int(qty) > 0x10000 {
		return nil, modbus.ExceptionCodeIllegalDataAddress
	}

	if exc := s.write(u, addr, unpackRegisters(data[5:])); exc != 0 {
		return nil, exc
	}
	return data[0:4], 0
}

// ---- register model ----

func (s *Server) registerAt(u Unit, addr uint16, blocks map[int][]uint16) uint16 {
	switch addr {
	case regmap.RegCommand:
		return 0
	case regmap.RegCount:
		return uint16(u.Adapter.Count())
	}

	index, slot, _ := regmap.Locate(addr)
	regs, ok := blocks[index]
	if !ok {
		regs = s.encodeBlock(u, index)
		blocks[index] = regs
	}
	return regs[slot]
}

// encodeBlock reads one parameter through the adapter.
// Indices past the end read as an empty block, which ends enumeration.
func (s *Server) encodeBlock(u Unit, index int) []uint16 {
	a := u.Adapter

	name := a.NameAt(index)
	if name == "" {
		return make([]uint16, regmap.BlockRegs)
	}

	b := regmap.Block{Name: name}
	b.Type, _ = a.TypeOf(name)
	a.GetByName(name, &b.Value)
	a.DefaultsAndBoundsByName(name, &b.Default, &b.Max, &b.Min)

	return regmap.Encode(b)
}

func (s *Server) write(u Unit, addr uint16, regs []uint16) byte {
	a := u.Adapter

	if addr >= regmap.RegCommand {
		if addr != regmap.RegCommand || len(regs) != 1 {
			return modbus.ExceptionCodeIllegalDataAddress
		}
		return s.command(u, regs[0])
	}

	index, slot, _ := regmap.Locate(addr)
	if slot+len(regs) > regmap.BlockRegs {
		return modbus.ExceptionCodeIllegalDataAddress
	}

	name := a.NameAt(index)
	if name == "" {
		// Like SetByName on an unknown name: acknowledged, no effect.
		return 0
	}

	typ, _ := a.TypeOf(name)
	v, err := regmap.DecodeWrite(typ, slot, regs)
	if err != nil {
		return modbus.ExceptionCodeIllegalDataAddress
	}

	a.SetByName(name, v)
	return 0
}

func (s *Server) command(u Unit, cmd uint16) byte {
	switch cmd {
	case regmap.CommandSave:
		if err := u.Adapter.SaveAll(); err != nil {
			s.log.Warn("modbus: save command failed", zap.Uint8("unit", u.ID), zap.Error(err))
			return modbus.ExceptionCodeServerDeviceFailure
		}
		s.log.Info("modbus: parameters saved", zap.Uint8("unit", u.ID))
		return 0

	case regmap.CommandErase:
		if err := u.Adapter.EraseAll(); err != nil {
			return modbus.ExceptionCodeServerDeviceFailure
		}
		s.log.Info("modbus: parameters reset to defaults", zap.Uint8("unit", u.ID))
		return 0

	default:
		return modbus.ExceptionCodeIllegalDataValue
	}
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
