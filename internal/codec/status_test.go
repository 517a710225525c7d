package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testLayout = StatusWordLayout{
	MachineState: BitField{Shift: 0, Width: 4},
	TankFull:     BitField{Shift: 4, Width: 4},
	ProductType:  BitField{Shift: 8, Width: 4},
	LineActive:   BitField{Shift: 12, Width: 2},
}

func TestBitField(t *testing.T) {
	f := BitField{Shift: 4, Width: 3}
	assert.Equal(t, uint16(0b101), f.Get(0b1101_0000))
	assert.Equal(t, uint16(0b0111_1111), f.Set(0b0000_1111, 0b111))
	// Bits beyond the width are discarded.
	assert.Equal(t, uint16(0b0001_0000), f.Set(0, 0b1001))
	assert.Equal(t, uint16(0), BitField{}.Get(0xFFFF))
}

func TestStatusWordDecode(t *testing.T) {
	// line 1 on, product 5, tanks 1 and 3 full, state 2.
	w := testLayout.Decode(0b0001_0101_0101_0010)
	assert.Equal(t, uint16(2), w.MachineState)
	assert.Equal(t, []bool{true, false, true, false}, w.TankFull)
	assert.Equal(t, uint16(5), w.ProductType)
	assert.Equal(t, []bool{true, false}, w.LineActive)
}

func TestStatusWordRoundTrip(t *testing.T) {
	for v := 0; v < 1<<14; v += 3 {
		w := testLayout.Decode(uint16(v))
		assert.Equal(t, uint16(v), testLayout.Encode(w))
	}
}

func TestStatusWordEncodeIgnoresExtraFlags(t *testing.T) {
	w := StatusWord{
		MachineState: 1,
		LineActive:   []bool{false, true, true, true},
	}
	assert.Equal(t, uint16(0b0010_0000_0000_0001), testLayout.Encode(w))
}
