// Package codec converts raw 16-bit holding register values into the
// typed values reported by filling machines. Nothing in here returns an
// error: undecodable input degrades to a zero value, nil or "".
package codec

import (
	"math"
	"strings"
	"time"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Combine16To32 joins two registers into a signed 32-bit value. low holds
// the least significant word.
//
// The result is signed even though both inputs are unsigned, so a counter
// at or above 2^31 comes out negative. Callers that need the raw bits use
// Combine16ToUint32.
func Combine16To32(low, high uint16) int32 {
	return int32(Combine16ToUint32(low, high))
}

// Combine16ToUint32 joins two registers into an unsigned 32-bit value.
func Combine16ToUint32(low, high uint16) uint32 {
	return uint32(high)<<16 | uint32(low)
}

// Combine16ToFloat32 reinterprets the low/high register pair as an
// IEEE-754 single precision float.
func Combine16ToFloat32(low, high uint16) float32 {
	return math.Float32frombits(Combine16ToUint32(low, high))
}

// Split32 is the inverse of Combine16ToUint32.
func Split32(v uint32) (low, high uint16) {
	return uint16(v & 0xFFFF), uint16(v >> 16)
}

// SplitFloat32 is the inverse of Combine16ToFloat32.
func SplitFloat32(f float32) (low, high uint16) {
	return Split32(math.Float32bits(f))
}

// Timestamp register order, relative to the block base address.
const (
	tsSecond = iota
	tsMinute
	tsHour
	tsDay
	tsMonth
	tsYear

	TimestampRegisters = 6
)

// ExtractTimestamp reads the six registers second, minute, hour, day,
// month, year starting at base. It returns nil when a register is missing
// or a field is out of range, which is what uninitialised PLC memory
// looks like.
func ExtractTimestamp(regs types.RegisterMap, base uint16) *time.Time {
	var f [TimestampRegisters]int
	for i := range f {
		v, ok := regs[base+uint16(i)]
		if !ok {
			return nil
		}
		f[i] = int(v)
	}

	switch {
	case f[tsYear] < 2020:
		return nil
	case f[tsMonth] < 1 || f[tsMonth] > 12:
		return nil
	case f[tsDay] < 1 || f[tsDay] > 31:
		return nil
	case f[tsHour] > 23:
		return nil
	case f[tsMinute] > 59 || f[tsSecond] > 59:
		return nil
	}

	t := time.Date(f[tsYear], time.Month(f[tsMonth]), f[tsDay], f[tsHour], f[tsMinute], f[tsSecond], 0, time.Local)
	return &t
}

// EncodeTimestamp writes t into regs in the layout ExtractTimestamp reads.
func EncodeTimestamp(regs types.RegisterMap, base uint16, t time.Time) {
	regs[base+tsSecond] = uint16(t.Second())
	regs[base+tsMinute] = uint16(t.Minute())
	regs[base+tsHour] = uint16(t.Hour())
	regs[base+tsDay] = uint16(t.Day())
	regs[base+tsMonth] = uint16(t.Month())
	regs[base+tsYear] = uint16(t.Year())
}

// ExtractASCIIString decodes two characters per register, low byte first,
// over the inclusive range [start, end]. Decoding stops at the first NUL
// byte or the first register missing from regs.
func ExtractASCIIString(regs types.RegisterMap, start, end uint16) string {
	var b strings.Builder
	for addr := uint32(start); addr <= uint32(end); addr++ {
		v, ok := regs[uint16(addr)]
		if !ok {
			break
		}
		lo, hi := byte(v&0xFF), byte(v>>8)
		if lo == 0 {
			break
		}
		b.WriteByte(lo)
		if hi == 0 {
			break
		}
		b.WriteByte(hi)
	}
	return strings.TrimSpace(b.String())
}

// EncodeASCIIString packs s into the inclusive register range [start, end],
// padding with NUL. Characters that do not fit are dropped.
func EncodeASCIIString(regs types.RegisterMap, start, end uint16, s string) {
	i := 0
	for addr := uint32(start); addr <= uint32(end); addr++ {
		var lo, hi byte
		if i < len(s) {
			lo = s[i]
		}
		if i+1 < len(s) {
			hi = s[i+1]
		}
		regs[uint16(addr)] = uint16(hi)<<8 | uint16(lo)
		i += 2
	}
}
