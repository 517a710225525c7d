package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeMachineUpdate MessageType = "machine_update"
	MessageTypeShiftChanged  MessageType = "shift_changed"

	// Sent once to every client right after it connects.
	MessageTypeWelcome MessageType = "welcome"
)

// Message represents a WebSocket message
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	MachineID string      `json:"machineId,omitempty"`
	ShiftID   string      `json:"shiftId,omitempty"`
	Data      any         `json:"data"`
}

// WelcomeData tells a fresh client how many peers are connected.
type WelcomeData struct {
	Clients int `json:"clients"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
