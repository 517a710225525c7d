package interfaces

import (
	"context"
	"time"
)

// ScannerStats describes the scanner state and the most recent scan cycle.
type ScannerStats struct {
	Running         bool       `json:"running"`
	Cycles          uint64     `json:"cycles"`
	LastScanStart   *time.Time `json:"lastScanStart,omitempty"`
	LastScanEnd     *time.Time `json:"lastScanEnd,omitempty"`
	MachinesScanned int        `json:"machinesScanned"`
	MachinesFailed  int        `json:"machinesFailed"`
}

// RelayStats counts notification deliveries. Delivered and Failed count
// per sink, Published and Dropped per event.
type RelayStats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string       `json:"state"`
	StartedAt        time.Time    `json:"startedAt"`
	Scanner          ScannerStats `json:"scanner"`
	Relay            RelayStats   `json:"relay"`
	MachineTypes     []string     `json:"machineTypes"`
	WebSocketClients int          `json:"webSocketClients"`
}

type LifecycleManager interface {
	GetCurrentStatus() SystemStatus
	ReloadMachineTypes() error
	Shutdown(ctx context.Context) error
}
