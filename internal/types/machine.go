package types

import (
	"net"
	"strconv"
	"time"
)

type MachineStatus string

const (
	MachineOnline      MachineStatus = "online"
	MachineOffline     MachineStatus = "offline"
	MachineError       MachineStatus = "error"
	MachineMaintenance MachineStatus = "maintenance"
)

// Machine types as provisioned on the machine record.
const (
	MachineTypeSalt   = "Salt Filling Machine"
	MachineTypePowder = "Powder Filling Machine"
)

// Maximum number of entries kept in Machine.ErrorHistory.
const maxErrorHistory = 50

// Machine is a physical filling machine reachable over Modbus TCP.
type Machine struct {
	MachineID string `json:"machineId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	UserID    string `json:"userId"`

	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
	SlaveID   uint8  `json:"slaveId"`

	IsConnected    bool          `json:"isConnected"`
	Status         MachineStatus `json:"status"`
	LastHeartbeat  *time.Time    `json:"lastHeartbeat,omitempty"`
	LastUpdate     *time.Time    `json:"lastUpdate,omitempty"`
	ConnectedAt    *time.Time    `json:"connectedAt,omitempty"`
	DisconnectedAt *time.Time    `json:"disconnectedAt,omitempty"`
	LastError      string        `json:"lastError,omitempty"`

	Parameters   MachineParameters `json:"parameters"`
	ErrorHistory []ErrorEntry      `json:"errorHistory,omitempty"`

	UptimeSeconds   float64 `json:"uptimeSeconds"`
	DowntimeSeconds float64 `json:"downtimeSeconds"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MachineParameters is the last raw register snapshot read from a machine.
type MachineParameters struct {
	Monitoring   RegisterMap `json:"monitoring,omitempty"`
	Admin        RegisterMap `json:"admin,omitempty"`
	BackupStatus uint16      `json:"backupStatus"`
}

// ErrorEntry is one line of a machine's error history.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// MarkOnline records a successful scan at now.
func (m *Machine) MarkOnline(now time.Time, params MachineParameters) {
	m.accumulate(now)
	if !m.IsConnected {
		m.ConnectedAt = &now
	}
	m.IsConnected = true
	m.Status = MachineOnline
	m.Parameters = params
	m.LastHeartbeat = &now
	m.LastUpdate = &now
	m.LastError = ""
}

// MarkOffline records a failed scan at now. A machine under maintenance
// keeps that status.
func (m *Machine) MarkOffline(now time.Time, reason string) {
	m.markDown(now, MachineOffline, reason)
}

// MarkError records a scan that reached the machine but could not be
// processed, e.g. an unknown machine type.
func (m *Machine) MarkError(now time.Time, reason string) {
	m.markDown(now, MachineError, reason)
}

func (m *Machine) markDown(now time.Time, status MachineStatus, reason string) {
	m.accumulate(now)
	if m.IsConnected || m.DisconnectedAt == nil {
		m.DisconnectedAt = &now
	}
	m.IsConnected = false
	if m.Status != MachineMaintenance {
		m.Status = status
	}
	m.LastUpdate = &now
	m.LastError = reason

	m.ErrorHistory = append(m.ErrorHistory, ErrorEntry{Timestamp: now, Message: reason})
	if n := len(m.ErrorHistory); n > maxErrorHistory {
		m.ErrorHistory = m.ErrorHistory[n-maxErrorHistory:]
	}
}

// accumulate credits the time since the last update to the state the
// machine was in during that time.
func (m *Machine) accumulate(now time.Time) {
	if m.LastUpdate == nil {
		return
	}
	elapsed := now.Sub(*m.LastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	if m.IsConnected {
		m.UptimeSeconds += elapsed
	} else {
		m.DowntimeSeconds += elapsed
	}
}

// Address returns host:port, falling back to defaultPort when the machine
// has none configured.
func (m *Machine) Address(defaultPort int) string {
	port := m.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(m.IPAddress, strconv.Itoa(port))
}

func (m *Machine) Clone() *Machine {
	out := *m
	out.LastHeartbeat = cloneTime(m.LastHeartbeat)
	out.LastUpdate = cloneTime(m.LastUpdate)
	out.ConnectedAt = cloneTime(m.ConnectedAt)
	out.DisconnectedAt = cloneTime(m.DisconnectedAt)
	out.Parameters.Monitoring = m.Parameters.Monitoring.Clone()
	out.Parameters.Admin = m.Parameters.Admin.Clone()
	out.ErrorHistory = append([]ErrorEntry(nil), m.ErrorHistory...)
	return &out
}
