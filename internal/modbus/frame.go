package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MBAP header (7 bytes) + function code + data
type ModbusFrame struct {
	TransactionID uint16 // request/response correlation, not checked on receive
	ProtocolID    uint16 // always 0x0000 for Modbus
	Length        uint16 // bytes following the length field
	UnitID        uint8  // slave address
	FunctionCode  uint8
	Data          []byte
}

const (
	FuncCodeReadHoldingRegisters = 0x03
	FuncCodeWriteSingleRegister  = 0x06

	// Set on the function code of an exception response.
	exceptionBit = 0x80

	mbapHeaderSize = 7
	// MBAP length covers unit id + PDU; a PDU is at most 253 bytes.
	maxFrameLength = 254
	// Registers per FC3 request.
	MaxReadQuantity = 125
)

// Exception codes defined by the Modbus application protocol.
const (
	ExceptionIllegalFunction     = 0x01
	ExceptionIllegalDataAddress  = 0x02
	ExceptionIllegalDataValue    = 0x03
	ExceptionServerDeviceFailure = 0x04
)

var ErrShortResponse = errors.New("short modbus response")

// ExceptionError is a response with the exception bit set on the function
// code.
type ExceptionError struct {
	Function uint8
	Code     uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Code, e.Function)
}

// Encode builds the complete TCP frame.
func (f *ModbusFrame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // unit id + function code

	frame := make([]byte, mbapHeaderSize+1+len(f.Data))

	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID

	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parses one complete frame.
func DecodeFrame(data []byte) (*ModbusFrame, error) {
	if len(data) < mbapHeaderSize+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &ModbusFrame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}

	if len(data) > mbapHeaderSize+1 {
		frame.Data = data[mbapHeaderSize+1:]
	}

	return frame, nil
}

// ReadFrame reads exactly one frame from r using the MBAP length field.
func ReadFrame(r io.Reader) (*ModbusFrame, error) {
	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(header[4:6])
	if length < 2 || length > maxFrameLength {
		return nil, fmt.Errorf("invalid frame length %d", length)
	}

	buf := make([]byte, mbapHeaderSize+int(length)-1)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[mbapHeaderSize:]); err != nil {
		return nil, err
	}

	return DecodeFrame(buf)
}

// Exception returns the exception carried by the frame, or nil.
func (f *ModbusFrame) Exception() error {
	if f.FunctionCode&exceptionBit == 0 {
		return nil
	}
	e := &ExceptionError{Function: f.FunctionCode &^ exceptionBit}
	if len(f.Data) > 0 {
		e.Code = f.Data[0]
	}
	return e
}

// ReadHoldingRegistersRequest builds a function code 0x03 request.
func ReadHoldingRegistersRequest(transactionID uint16, unitID uint8, startAddr uint16, quantity uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &ModbusFrame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeReadHoldingRegisters,
		Data:          data,
	}
}

// WriteSingleRegisterRequest builds a function code 0x06 request. The
// response echoes the same frame.
func WriteSingleRegisterRequest(transactionID uint16, unitID uint8, addr uint16, value uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &ModbusFrame{
		TransactionID: transactionID,
		ProtocolID:    0x0000,
		UnitID:        unitID,
		FunctionCode:  FuncCodeWriteSingleRegister,
		Data:          data,
	}
}

// ReadHoldingRegistersResponse builds the reply to a 0x03 request.
func ReadHoldingRegistersResponse(transactionID uint16, unitID uint8, values []uint16) *ModbusFrame {
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[1+2*i:], v)
	}

	return &ModbusFrame{
		TransactionID: transactionID,
		UnitID:        unitID,
		FunctionCode:  FuncCodeReadHoldingRegisters,
		Data:          data,
	}
}

func ExceptionResponse(transactionID uint16, unitID uint8, function, code uint8) *ModbusFrame {
	return &ModbusFrame{
		TransactionID: transactionID,
		UnitID:        unitID,
		FunctionCode:  function | exceptionBit,
		Data:          []byte{code},
	}
}

// AddressQuantity decodes the first two words of a request PDU: start
// address and quantity for 0x03, address and value for 0x06.
func (f *ModbusFrame) AddressQuantity() (uint16, uint16, error) {
	if len(f.Data) < 4 {
		return 0, 0, ErrShortResponse
	}
	return binary.BigEndian.Uint16(f.Data[0:2]), binary.BigEndian.Uint16(f.Data[2:4]), nil
}

// ParseRegisterResponse decodes a holding register response. An exception
// response or a byte count that does not match quantity is an error.
func (f *ModbusFrame) ParseRegisterResponse(quantity uint16) ([]uint16, error) {
	if err := f.Exception(); err != nil {
		return nil, err
	}
	if f.FunctionCode != FuncCodeReadHoldingRegisters {
		return nil, fmt.Errorf("unexpected function code 0x%02X", f.FunctionCode)
	}
	if len(f.Data) < 1 {
		return nil, ErrShortResponse
	}

	byteCount := int(f.Data[0])
	if byteCount != 2*int(quantity) || len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", ErrShortResponse, byteCount, quantity)
	}

	registers := make([]uint16, quantity)
	for i := range registers {
		offset := 1 + i*2
		registers[i] = binary.BigEndian.Uint16(f.Data[offset : offset+2])
	}

	return registers, nil
}
