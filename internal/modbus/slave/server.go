// Package slave is a small Modbus TCP slave serving holding registers from
// memory. It backs the machine simulator and the poller tests.
package slave

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/modbus"
)

type Server struct {
	mu        sync.Mutex
	registers map[uint16]uint16
	faults    map[uint16]uint8
	delay     time.Duration
	requests  []Request

	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// Request is a decoded request the server has answered.
type Request struct {
	TransactionID uint16
	Function      uint8
	Address       uint16
	Value         uint16 // quantity for reads
}

func NewServer(logger *zap.Logger) *Server {
	return &Server{
		registers: make(map[uint16]uint16),
		faults:    make(map[uint16]uint8),
		conns:     make(map[net.Conn]struct{}),
		logger:    logger.Named("slave"),
	}
}

// Listen starts serving on address, e.g. "127.0.0.1:0".
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Close() error {
	err := s.listener.Close()
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// SetRegisters stores values at consecutive addresses from start.
func (s *Server) SetRegisters(start uint16, values []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range values {
		s.registers[start+uint16(i)] = v
	}
}

func (s *Server) Register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[addr]
}

// SetFault makes any request touching addr answer with an exception.
// Code 0 clears the fault.
func (s *Server) SetFault(addr uint16, code uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.faults, addr)
		return
	}
	s.faults[addr] = code
}

// SetDelay holds every response back by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns the requests answered so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("Accept failed", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		request, err := modbus.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Connection read error", zap.Error(err))
			}
			return
		}

		response, delay := s.process(request)
		if delay > 0 {
			time.Sleep(delay)
		}
		if _, err := conn.Write(response.Encode()); err != nil {
			s.logger.Debug("Connection write error", zap.Error(err))
			return
		}
	}
}

func (s *Server) process(request *modbus.ModbusFrame) (*modbus.ModbusFrame, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID, unit, fc := request.TransactionID, request.UnitID, request.FunctionCode
	addr, value, err := request.AddressQuantity()
	if err != nil {
		return modbus.ExceptionResponse(txID, unit, fc, modbus.ExceptionIllegalDataValue), s.delay
	}
	s.requests = append(s.requests, Request{TransactionID: txID, Function: fc, Address: addr, Value: value})

	switch fc {
	case modbus.FuncCodeReadHoldingRegisters:
		if value == 0 || value > modbus.MaxReadQuantity {
			return modbus.ExceptionResponse(txID, unit, fc, modbus.ExceptionIllegalDataValue), s.delay
		}
		values := make([]uint16, value)
		for i := range values {
			a := addr + uint16(i)
			if code, ok := s.faults[a]; ok {
				return modbus.ExceptionResponse(txID, unit, fc, code), s.delay
			}
			values[i] = s.registers[a]
		}
		return modbus.ReadHoldingRegistersResponse(txID, unit, values), s.delay

	case modbus.FuncCodeWriteSingleRegister:
		if code, ok := s.faults[addr]; ok {
			return modbus.ExceptionResponse(txID, unit, fc, code), s.delay
		}
		s.registers[addr] = value
		return modbus.WriteSingleRegisterRequest(txID, unit, addr, value), s.delay
	}

	return modbus.ExceptionResponse(txID, unit, fc, modbus.ExceptionIllegalFunction), s.delay
}
