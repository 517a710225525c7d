package shift

import (
	"github.com/KevinKickass/OpenFillMonitor/internal/codec"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Transform fills the decoded fields of s from a monitoring and an admin
// register map. It always resets ShiftPausedTime to 0; pause accounting
// belongs to the caller. Identity, status and pause history are left
// alone.
func Transform(desc *machinetype.Descriptor, s *types.Shift, monitoring, admin types.RegisterMap) {
	regs := merged(monitoring, admin)

	status := desc.StatusWord.Decode(regs[desc.StatusRegister])
	s.Monitoring = types.MonitoringData{
		MachineStatus:     status.MachineState,
		TankFull:          status.TankFull,
		ProductType:       status.ProductType,
		LineActive:        status.LineActive,
		TargetWeight:      float32At(regs, desc.TargetWeight.Low, desc.TargetWeight.High),
		TotalWeightFilled: make(types.Variants, len(desc.Weights)),
		TotalBottles:      make(map[string]int64, len(desc.Bottles)),
		ErrorCode:         regs[desc.ErrorCode],
	}
	for _, w := range desc.Weights {
		s.Monitoring.TotalWeightFilled[w.Name] = float32At(regs, w.Low, w.High)
	}
	for _, b := range desc.Bottles {
		s.Monitoring.TotalBottles[b.Name] = int64(codec.Combine16To32(regs[b.Low], regs[b.High]))
	}

	s.Admin = types.AdminData{
		Loadcells: make([]types.LoadcellConfig, 0, desc.Loadcells.Count),
		Motor:     make(map[string]uint16, len(desc.Motor)),
	}
	for i := 0; i < desc.Loadcells.Count; i++ {
		base := desc.Loadcells.Base + uint16(i)*desc.Loadcells.Stride
		s.Admin.Loadcells = append(s.Admin.Loadcells, types.LoadcellConfig{
			Cell:   i + 1,
			Gain:   float32At(regs, base, base+1),
			Offset: codec.Combine16To32(regs[base+2], regs[base+3]),
		})
	}
	for _, m := range desc.Motor {
		s.Admin.Motor[m.Name] = regs[m.Address]
	}

	s.TimeTracking = types.TimeTracking{
		ShiftStartTime:  codec.ExtractTimestamp(regs, desc.StartTime),
		ShiftEndTime:    codec.ExtractTimestamp(regs, desc.EndTime),
		ShiftPausedTime: 0,
	}
	s.OperatorName = codec.ExtractASCIIString(regs, desc.Operator.Start, desc.Operator.End)

	s.RawMonitoring = monitoring.Clone()
	s.RawAdmin = admin.Clone()
}

func float32At(regs types.RegisterMap, low, high uint16) float64 {
	return finite(float64(codec.Combine16ToFloat32(regs[low], regs[high])))
}

// merged lets a layout address any register regardless of which half of
// the block it falls in.
func merged(monitoring, admin types.RegisterMap) types.RegisterMap {
	out := make(types.RegisterMap, len(monitoring)+len(admin))
	for k, v := range admin {
		out[k] = v
	}
	for k, v := range monitoring {
		out[k] = v
	}
	return out
}
