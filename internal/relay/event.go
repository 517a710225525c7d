package relay

import (
	"time"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

type EventType string

const (
	EventMachineUpdate EventType = "machine_update"
	EventShiftChanged  EventType = "shift_changed"
)

// Event is one notification. Data is a *types.Machine or *types.Shift
// snapshot owned by the event.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	MachineID string    `json:"machineId"`
	ShiftID   string    `json:"shiftId,omitempty"`
	Data      any       `json:"data"`
}

func NewMachineEvent(m *types.Machine, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventMachineUpdate,
		Timestamp: now,
		MachineID: m.MachineID,
		Data:      m.Clone(),
	}
}

func NewShiftEvent(s *types.Shift, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventShiftChanged,
		Timestamp: now,
		MachineID: s.MachineID,
		ShiftID:   s.ShiftID,
		Data:      s.Clone(),
	}
}

// Key is the partition key used by ordered transports.
func (e Event) Key() string {
	if e.ShiftID != "" {
		return e.ShiftID
	}
	return e.MachineID
}
