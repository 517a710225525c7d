package modbus

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHoldingRegistersRequestEncoding(t *testing.T) {
	frame := ReadHoldingRegistersRequest(0x0102, 1, 100, 70)
	assert.Equal(t, []byte{
		0x01, 0x02, // transaction id
		0x00, 0x00, // protocol id
		0x00, 0x06, // length
		0x01,       // unit id
		0x03,       // function code
		0x00, 0x64, // start address
		0x00, 0x46, // quantity
	}, frame.Encode())
}

func TestWriteSingleRegisterRequestEncoding(t *testing.T) {
	frame := WriteSingleRegisterRequest(7, 2, 99, 0x03FF)
	assert.Equal(t, []byte{0, 7, 0, 0, 0, 6, 2, 0x06, 0, 99, 0x03, 0xFF}, frame.Encode())
}

func TestReadFrameUsesLengthField(t *testing.T) {
	first := ReadHoldingRegistersResponse(1, 1, []uint16{0x1234, 0xABCD}).Encode()
	second := WriteSingleRegisterRequest(2, 1, 5, 6).Encode()
	r := bytes.NewReader(append(first, second...))

	frame, err := ReadFrame(r)
	require.NoError(t, err)
	values, err := frame.ParseRegisterResponse(2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0xABCD}, values)

	frame, err = ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), frame.TransactionID)
	addr, value, err := frame.AddressQuantity()
	require.NoError(t, err)
	assert.Equal(t, uint16(5), addr)
	assert.Equal(t, uint16(6), value)
}

func TestReadFrameRejectsBadInput(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 1, 0, 0, 0x01, 0x00, 1}))
	assert.ErrorContains(t, err, "invalid frame length")

	_, err = ReadFrame(bytes.NewReader([]byte{0, 1, 0, 0, 0, 6, 1, 3}))
	assert.Error(t, err, "truncated body")

	_, err = DecodeFrame([]byte{0, 1, 0, 7, 0, 2, 1, 3})
	assert.ErrorContains(t, err, "protocol ID")
}

func TestExceptionResponse(t *testing.T) {
	frame, err := ReadFrame(bytes.NewReader(ExceptionResponse(3, 1, FuncCodeReadHoldingRegisters, ExceptionIllegalDataAddress).Encode()))
	require.NoError(t, err)

	_, err = frame.ParseRegisterResponse(10)
	var exc *ExceptionError
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, uint8(FuncCodeReadHoldingRegisters), exc.Function)
	assert.Equal(t, uint8(ExceptionIllegalDataAddress), exc.Code)
}

func TestParseRegisterResponseShort(t *testing.T) {
	frame := ReadHoldingRegistersResponse(1, 1, []uint16{1, 2, 3})
	_, err := frame.ParseRegisterResponse(4)
	assert.ErrorIs(t, err, ErrShortResponse)

	frame.Data = nil
	_, err = frame.ParseRegisterResponse(1)
	assert.ErrorIs(t, err, ErrShortResponse)
}
