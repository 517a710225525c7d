package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

func TestMachineOnlineOfflineAccounting(t *testing.T) {
	m := &Machine{MachineID: "MACHINE_001", Status: MachineOffline}

	m.MarkOnline(t0, MachineParameters{Monitoring: RegisterMap{0: 1}})
	assert.True(t, m.IsConnected)
	assert.Equal(t, MachineOnline, m.Status)
	require.NotNil(t, m.ConnectedAt)
	assert.Equal(t, t0, *m.ConnectedAt)
	assert.Zero(t, m.UptimeSeconds)

	m.MarkOnline(t0.Add(30*time.Second), MachineParameters{})
	assert.Equal(t, 30.0, m.UptimeSeconds)
	assert.Equal(t, t0, *m.ConnectedAt, "connectedAt only moves on reconnect")

	m.MarkOffline(t0.Add(60*time.Second), "dial tcp: connection refused")
	assert.False(t, m.IsConnected)
	assert.Equal(t, MachineOffline, m.Status)
	assert.Equal(t, 60.0, m.UptimeSeconds)
	assert.Equal(t, "dial tcp: connection refused", m.LastError)
	require.Len(t, m.ErrorHistory, 1)
	assert.Equal(t, ErrorEntry{Timestamp: t0.Add(60 * time.Second), Message: "dial tcp: connection refused"}, m.ErrorHistory[0])

	m.MarkOffline(t0.Add(90*time.Second), "i/o timeout")
	assert.Equal(t, 30.0, m.DowntimeSeconds)
	assert.Equal(t, t0.Add(60*time.Second), *m.DisconnectedAt, "disconnectedAt marks the first failure")

	m.MarkOnline(t0.Add(120*time.Second), MachineParameters{})
	assert.Equal(t, 60.0, m.DowntimeSeconds)
	assert.Empty(t, m.LastError)
	assert.Equal(t, t0.Add(120*time.Second), *m.ConnectedAt)
}

func TestMachineMaintenanceIsPreserved(t *testing.T) {
	m := &Machine{Status: MachineMaintenance}
	m.MarkOffline(t0, "timeout")
	assert.Equal(t, MachineMaintenance, m.Status)
	assert.False(t, m.IsConnected)

	m.MarkError(t0, "unknown machine type")
	assert.Equal(t, MachineMaintenance, m.Status)

	m = &Machine{}
	m.MarkError(t0, "unknown machine type")
	assert.Equal(t, MachineError, m.Status)
}

func TestMachineErrorHistoryIsCapped(t *testing.T) {
	m := &Machine{}
	for i := 0; i < maxErrorHistory+5; i++ {
		m.MarkOffline(t0.Add(time.Duration(i)*time.Second), fmt.Sprintf("err %d", i))
	}
	require.Len(t, m.ErrorHistory, maxErrorHistory)
	assert.Equal(t, "err 5", m.ErrorHistory[0].Message)
	assert.Equal(t, fmt.Sprintf("err %d", maxErrorHistory+4), m.ErrorHistory[maxErrorHistory-1].Message)
}

func TestMachineAddress(t *testing.T) {
	m := &Machine{IPAddress: "10.0.0.5"}
	assert.Equal(t, "10.0.0.5:502", m.Address(502))
	m.Port = 1502
	assert.Equal(t, "10.0.0.5:1502", m.Address(502))
}

func TestMachineClone(t *testing.T) {
	m := &Machine{MachineID: "MACHINE_001"}
	m.MarkOnline(t0, MachineParameters{Monitoring: RegisterMap{0: 1}})

	c := m.Clone()
	c.Parameters.Monitoring[0] = 9
	*c.LastHeartbeat = t0.Add(time.Hour)

	assert.Equal(t, uint16(1), m.Parameters.Monitoring[0])
	assert.Equal(t, t0, *m.LastHeartbeat)
}
