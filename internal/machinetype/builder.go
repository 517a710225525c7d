package machinetype

import (
	"time"

	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Block assembles a register block laid out per a Descriptor. It is the
// inverse of the transformer and is used to drive simulators and tests.
type Block struct {
	desc *Descriptor
	regs types.RegisterMap
}

func (d *Descriptor) NewBlock() *Block {
	return &Block{desc: d, regs: make(types.RegisterMap)}
}

func (b *Block) SetStatus(w codec.StatusWord) *Block {
	b.regs[b.desc.StatusRegister] = b.desc.StatusWord.Encode(w)
	return b
}

// SetMachineState replaces only the machine-state bits of the status word.
func (b *Block) SetMachineState(code uint16) *Block {
	addr := b.desc.StatusRegister
	b.regs[addr] = b.desc.StatusWord.MachineState.Set(b.regs[addr], code)
	return b
}

func (b *Block) SetShiftNumber(n uint32) *Block {
	b.setPair(b.desc.ShiftCounter, n)
	return b
}

func (b *Block) SetTargetWeight(w float32) *Block {
	low, high := codec.SplitFloat32(w)
	b.regs[b.desc.TargetWeight.Low] = low
	b.regs[b.desc.TargetWeight.High] = high
	return b
}

// SetWeight sets the filled weight of a variant. Unknown variants are
// ignored.
func (b *Block) SetWeight(variant string, w float32) *Block {
	for _, p := range b.desc.Weights {
		if p.Name == variant {
			low, high := codec.SplitFloat32(w)
			b.regs[p.Low] = low
			b.regs[p.High] = high
		}
	}
	return b
}

func (b *Block) SetBottles(variant string, n uint32) *Block {
	for _, p := range b.desc.Bottles {
		if p.Name == variant {
			b.setPair(RegisterPair{Low: p.Low, High: p.High}, n)
		}
	}
	return b
}

func (b *Block) SetErrorCode(code uint16) *Block {
	b.regs[b.desc.ErrorCode] = code
	return b
}

// SetLoadcell sets cell (1-based) gain and offset.
func (b *Block) SetLoadcell(cell int, gain float32, offset int32) *Block {
	if cell < 1 || cell > b.desc.Loadcells.Count {
		return b
	}
	base := b.desc.Loadcells.Base + uint16(cell-1)*b.desc.Loadcells.Stride
	gl, gh := codec.SplitFloat32(gain)
	ol, oh := codec.Split32(uint32(offset))
	b.regs[base] = gl
	b.regs[base+1] = gh
	b.regs[base+2] = ol
	b.regs[base+3] = oh
	return b
}

func (b *Block) SetMotor(name string, v uint16) *Block {
	for _, m := range b.desc.Motor {
		if m.Name == name {
			b.regs[m.Address] = v
		}
	}
	return b
}

func (b *Block) SetStartTime(t time.Time) *Block {
	codec.EncodeTimestamp(b.regs, b.desc.StartTime, t)
	return b
}

func (b *Block) SetEndTime(t time.Time) *Block {
	codec.EncodeTimestamp(b.regs, b.desc.EndTime, t)
	return b
}

func (b *Block) SetOperator(name string) *Block {
	codec.EncodeASCIIString(b.regs, b.desc.Operator.Start, b.desc.Operator.End, name)
	return b
}

// Values returns the block as BlockSize consecutive registers.
func (b *Block) Values() []uint16 {
	out := make([]uint16, b.desc.BlockSize)
	for addr, v := range b.regs {
		if int(addr) < len(out) {
			out[addr] = v
		}
	}
	return out
}

func (b *Block) setPair(p RegisterPair, v uint32) {
	low, high := codec.Split32(v)
	b.regs[p.Low] = low
	b.regs[p.High] = high
}
