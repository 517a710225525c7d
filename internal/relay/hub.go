package relay

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenFillMonitor/internal/api/websocket"
)

var ErrHubBusy = errors.New("websocket hub queue full")

// HubSink pushes events to the dashboard websocket clients.
type HubSink struct {
	hub *websocket.Hub
}

func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Deliver(_ context.Context, ev Event) error {
	msg := websocket.Message{
		ID:        ev.ID.String(),
		Type:      websocket.MessageType(ev.Type),
		Timestamp: ev.Timestamp,
		MachineID: ev.MachineID,
		ShiftID:   ev.ShiftID,
		Data:      ev.Data,
	}
	if !s.hub.Broadcast(msg) {
		return ErrHubBusy
	}
	return nil
}

func (s *HubSink) Close() error { return nil }
