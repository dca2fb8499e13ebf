// internal/server/modbus/server.go
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/tamzrod/nvparam/internal/metrics"
	"github.com/tamzrod/nvparam/internal/paramserver"
)

// MBAP header: TID(2) PID(2=0) LEN(2) UID(1)
const (
	mbapHeaderLen = 7
	maxPDULen     = 253

	maxReadQty  = 125
	maxWriteQty = 123
)

// Unit is one registry exposed under a Modbus unit id.
// Lock is held for the whole of each request against this unit.
type Unit struct {
	ID      uint8
	Adapter *paramserver.Adapter
	Lock    sync.Locker
}

// Config is the listener configuration.
type Config struct {
	Listen string
	// Timeout is the idle read timeout per connection. Zero disables it.
	Timeout time.Duration
}

// Server serves parameter blocks over Modbus TCP.
// Request handling is geometry only: every value goes through the unit's adapter.
type Server struct {
	cfg     Config
	units   map[uint8]Unit
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = mt }
}

// New creates a server for units.
func New(cfg Config, units []Unit, opts ...Option) (*Server, error) {
	if len(units) == 0 {
		return nil, errors.New("modbus server: at least one unit required")
	}

	s := &Server{
		cfg:   cfg,
		units: make(map[uint8]Unit, len(units)),
		log:   zap.NewNop(),
		conns: make(map[net.Conn]struct{}),
	}

	for _, u := range units {
		if u.Adapter == nil {
			return nil, fmt.Errorf("modbus server: unit %d: adapter required", u.ID)
		}
		if _, dup := s.units[u.ID]; dup {
			return nil, fmt.Errorf("modbus server: duplicate unit id %d", u.ID)
		}
		if u.Lock == nil {
			u.Lock = &sync.Mutex{}
		}
		s.units[u.ID] = u
	}

	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ListenAndServe listens on cfg.Listen and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Listen == "" {
		return errors.New("modbus server: listen address required")
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
// It returns nil on a ctx-driven shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("modbus server listening", zap.String("addr", ln.Addr().String()))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.serveConn(conn)
		}()
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add && !s.closed {
		s.conns[c] = struct{}{}
		return
	}
	delete(s.conns, c)
	_ = c.Close()
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
}

// ---- connection loop ----

func (s *Server) serveConn(conn net.Conn) {
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("modbus connection opened")

	hdr := make([]byte, mbapHeaderLen)
	for {
		if s.cfg.Timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout))
		}

		if _, err := io.ReadFull(conn, hdr); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("modbus connection closed", zap.Error(err))
			}
			return
		}

		tid := binary.BigEndian.Uint16(hdr[0:2])
		pid := binary.BigEndian.Uint16(hdr[2:4])
		length := int(binary.BigEndian.Uint16(hdr[4:6]))
		unitID := hdr[6]

		// Length = UnitID(1) + PDU; a PDU is at least the function code.
		if pid != 0 || length < 2 || length-1 > maxPDULen {
			log.Warn("modbus: malformed MBAP header, dropping connection",
				zap.Uint16("pid", pid),
				zap.Int("length", length),
			)
			return
		}

		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			log.Debug("modbus: short PDU", zap.Error(err))
			return
		}

		resp := s.Handle(unitID, &modbus.ProtocolDataUnit{FunctionCode: pdu[0], Data: pdu[1:]})

		out := make([]byte, mbapHeaderLen+1+len(resp.Data))
		binary.BigEndian.PutUint16(out[0:2], tid)
		binary.BigEndian.PutUint16(out[2:4], 0)
		binary.BigEndian.PutUint16(out[4:6], uint16(2+len(resp.Data)))
		out[6] = unitID
		out[7] = resp.FunctionCode
		copy(out[8:], resp.Data)

		if _, err := conn.Write(out); err != nil {
			log.Debug("modbus: response write failed", zap.Error(err))
			return
		}
	}
}
