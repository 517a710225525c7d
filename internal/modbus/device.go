package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Device is one Modbus slave reachable over TCP. It outlives individual
// sessions and carries the transaction id counter across them.
type Device struct {
	Name    string
	Address string
	UnitID  uint8

	timeout time.Duration
	mu      sync.Mutex
	txID    uint16
}

func NewDevice(name, address string, unitID uint8, timeout time.Duration) *Device {
	return &Device{
		Name:    name,
		Address: address,
		UnitID:  unitID,
		timeout: timeout,
	}
}

// NextTransactionID increments and returns the device's transaction id.
func (d *Device) NextTransactionID() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txID++
	return d.txID
}

// TransactionID returns the last id handed out.
func (d *Device) TransactionID() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txID
}

// Connect opens a new session. The caller closes it.
func (d *Device) Connect(ctx context.Context) (*Session, error) {
	client := NewClient(d.Address, d.timeout, WithTransactionIDs(d.NextTransactionID))
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Name, err)
	}
	return &Session{client: client, unitID: d.UnitID}, nil
}

// Session is an open connection bound to a unit id.
type Session struct {
	client *Client
	unitID uint8
}

func (s *Session) ReadRegisters(ctx context.Context, addr, quantity uint16) ([]uint16, error) {
	return s.client.ReadHoldingRegisters(ctx, s.unitID, addr, quantity)
}

func (s *Session) WriteRegister(ctx context.Context, addr, value uint16) error {
	return s.client.WriteSingleRegister(ctx, s.unitID, addr, value)
}

func (s *Session) Close() error {
	return s.client.Close()
}
