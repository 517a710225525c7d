package types

// RegisterMap holds raw register values keyed by address. Addresses are
// relative to the start of the block they were read from.
type RegisterMap map[uint16]uint16

// NewRegisterMap indexes values starting at address base.
func NewRegisterMap(base uint16, values []uint16) RegisterMap {
	m := make(RegisterMap, len(values))
	for i, v := range values {
		m[base+uint16(i)] = v
	}
	return m
}

// Slice returns the registers in [from, to) that are present in values.
func Slice(values []uint16, from, to uint16) RegisterMap {
	m := make(RegisterMap)
	for addr := from; addr < to && int(addr) < len(values); addr++ {
		m[addr] = values[addr]
	}
	return m
}

func (m RegisterMap) Clone() RegisterMap {
	return cloneMap(m)
}
