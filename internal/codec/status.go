package codec

// BitField locates a value of Width bits starting at bit Shift.
type BitField struct {
	Shift uint8 `json:"shift" yaml:"shift"`
	Width uint8 `json:"width" yaml:"width"`
}

func (f BitField) mask() uint16 {
	if f.Width == 0 {
		return 0
	}
	return uint16(1)<<f.Width - 1
}

// Get extracts the field from a packed register.
func (f BitField) Get(v uint16) uint16 {
	return (v >> f.Shift) & f.mask()
}

// Set returns v with the field replaced by x. Bits of x beyond Width are
// discarded.
func (f BitField) Set(v, x uint16) uint16 {
	m := f.mask() << f.Shift
	return v&^m | (x<<f.Shift)&m
}

// StatusWordLayout describes how one packed status register splits into
// independent fields. Layouts differ per machine type.
type StatusWordLayout struct {
	MachineState BitField `json:"machine_state" yaml:"machine_state"`
	TankFull     BitField `json:"tank_full" yaml:"tank_full"`
	ProductType  BitField `json:"product_type" yaml:"product_type"`
	LineActive   BitField `json:"line_active" yaml:"line_active"`
}

// StatusWord is a decoded status register.
type StatusWord struct {
	MachineState uint16 `json:"machineState"`
	TankFull     []bool `json:"tankFull"`
	ProductType  uint16 `json:"productType"`
	LineActive   []bool `json:"lineActive"`
}

func (l StatusWordLayout) Decode(v uint16) StatusWord {
	return StatusWord{
		MachineState: l.MachineState.Get(v),
		TankFull:     flags(l.TankFull, v),
		ProductType:  l.ProductType.Get(v),
		LineActive:   flags(l.LineActive, v),
	}
}

// Encode packs w. Flags beyond the field width are ignored.
func (l StatusWordLayout) Encode(w StatusWord) uint16 {
	var v uint16
	v = l.MachineState.Set(v, w.MachineState)
	v = l.TankFull.Set(v, packFlags(w.TankFull))
	v = l.ProductType.Set(v, w.ProductType)
	v = l.LineActive.Set(v, packFlags(w.LineActive))
	return v
}

func flags(f BitField, v uint16) []bool {
	bits := f.Get(v)
	out := make([]bool, f.Width)
	for i := range out {
		out[i] = bits&(1<<i) != 0
	}
	return out
}

func packFlags(fs []bool) uint16 {
	var v uint16
	for i, on := range fs {
		if on && i < 16 {
			v |= 1 << i
		}
	}
	return v
}
