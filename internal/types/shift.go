package types

import (
	"regexp"
	"time"
)

type ShiftStatus string

const (
	ShiftActive     ShiftStatus = "active"
	ShiftPaused     ShiftStatus = "paused"
	ShiftComplete   ShiftStatus = "complete"
	ShiftIncomplete ShiftStatus = "incomplete"
)

// Open reports whether the shift is still being produced.
func (s ShiftStatus) Open() bool {
	return s == ShiftActive || s == ShiftPaused
}

var shiftIDPattern = regexp.MustCompile(`^M\d+_S\d+$`)

// ValidShiftID reports whether id has the form M<machineNumber>_S<shiftNumber>.
func ValidShiftID(id string) bool {
	return shiftIDPattern.MatchString(id)
}

// Variants maps a product variant to a value. Single-product machines use
// the single key "total".
type Variants map[string]float64

// Shift is one production run on one machine.
type Shift struct {
	ShiftID       string      `json:"shiftId"`
	MachineID     string      `json:"machineId"`
	MachineName   string      `json:"machineName"`
	MachineType   string      `json:"machineType"`
	UserID        string      `json:"userId"`
	MachineNumber int         `json:"machineNumber"`
	ShiftNumber   int64       `json:"shiftNumber"`
	Status        ShiftStatus `json:"status"`

	Monitoring   MonitoringData  `json:"monitoring"`
	Admin        AdminData       `json:"admin"`
	TimeTracking TimeTracking    `json:"timeTracking"`
	PauseHistory []PauseInterval `json:"pauseHistory"`
	OperatorName string          `json:"operatorName"`

	// Minutes of production time excluding pauses.
	Duration   float64  `json:"duration"`
	Efficiency Variants `json:"efficiency"`

	RawMonitoring RegisterMap `json:"rawMonitoring,omitempty"`
	RawAdmin      RegisterMap `json:"rawAdmin,omitempty"`

	IsFromBackup bool `json:"isFromBackup"`
	BackupIndex  int  `json:"backupIndex,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MonitoringData struct {
	MachineStatus     uint16           `json:"machineStatus"`
	TankFull          []bool           `json:"tankFull"`
	ProductType       uint16           `json:"productType"`
	LineActive        []bool           `json:"lineActive"`
	TargetWeight      float64          `json:"targetWeight"`
	TotalWeightFilled Variants         `json:"totalWeightFilled"`
	TotalBottles      map[string]int64 `json:"totalBottles"`
	ErrorCode         uint16           `json:"errorCode"`
}

type AdminData struct {
	Loadcells []LoadcellConfig  `json:"loadcells"`
	Motor     map[string]uint16 `json:"motor"`
}

type LoadcellConfig struct {
	Cell   int     `json:"cell"`
	Gain   float64 `json:"gain"`
	Offset int32   `json:"offset"`
}

type TimeTracking struct {
	ShiftStartTime *time.Time `json:"shiftStartTime"`
	ShiftEndTime   *time.Time `json:"shiftEndTime"`
	// Accumulated pause minutes, including the running pause if any.
	ShiftPausedTime float64 `json:"shiftPausedTime"`
}

// PauseInterval is a span during which the machine reported paused. EndTime
// is nil while the pause is still running.
type PauseInterval struct {
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationMinutes float64    `json:"durationMinutes"`
}

// OpenPause returns the last pause interval if it has not ended yet.
func (s *Shift) OpenPause() *PauseInterval {
	if n := len(s.PauseHistory); n > 0 && s.PauseHistory[n-1].EndTime == nil {
		return &s.PauseHistory[n-1]
	}
	return nil
}

// StartPause appends a new open pause interval.
func (s *Shift) StartPause(now time.Time) {
	s.PauseHistory = append(s.PauseHistory, PauseInterval{StartTime: now})
}

// EndPause closes the running pause, if any, at now.
func (s *Shift) EndPause(now time.Time) {
	if p := s.OpenPause(); p != nil {
		end := now
		p.EndTime = &end
		p.DurationMinutes = minutesBetween(p.StartTime, now)
	}
}

// RefreshPause updates the running pause's duration to now.
func (s *Shift) RefreshPause(now time.Time) {
	if p := s.OpenPause(); p != nil {
		p.DurationMinutes = minutesBetween(p.StartTime, now)
	}
}

// PausedMinutes sums the durations of all pause intervals.
func (s *Shift) PausedMinutes() float64 {
	var total float64
	for _, p := range s.PauseHistory {
		total += p.DurationMinutes
	}
	return total
}

// Clone returns a deep copy.
func (s *Shift) Clone() *Shift {
	out := *s
	out.Monitoring.TankFull = append([]bool(nil), s.Monitoring.TankFull...)
	out.Monitoring.LineActive = append([]bool(nil), s.Monitoring.LineActive...)
	out.Monitoring.TotalWeightFilled = cloneMap(s.Monitoring.TotalWeightFilled)
	out.Monitoring.TotalBottles = cloneMap(s.Monitoring.TotalBottles)
	out.Admin.Loadcells = append([]LoadcellConfig(nil), s.Admin.Loadcells...)
	out.Admin.Motor = cloneMap(s.Admin.Motor)
	out.TimeTracking.ShiftStartTime = cloneTime(s.TimeTracking.ShiftStartTime)
	out.TimeTracking.ShiftEndTime = cloneTime(s.TimeTracking.ShiftEndTime)
	if s.PauseHistory != nil {
		out.PauseHistory = make([]PauseInterval, len(s.PauseHistory))
		for i, p := range s.PauseHistory {
			p.EndTime = cloneTime(p.EndTime)
			out.PauseHistory[i] = p
		}
	}
	out.Efficiency = cloneMap(s.Efficiency)
	out.RawMonitoring = s.RawMonitoring.Clone()
	out.RawAdmin = s.RawAdmin.Clone()
	return &out
}

func cloneMap[K comparable, V any, M ~map[K]V](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func minutesBetween(from, to time.Time) float64 {
	return to.Sub(from).Minutes()
}
