package relay

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

const (
	measurementShift   = "shift_metrics"
	measurementMachine = "machine_status"
)

// InfluxSink records shift metrics and machine connectivity as points.
type InfluxSink struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

func NewInfluxSink(cfg config.InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (s *InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) Deliver(ctx context.Context, ev Event) error {
	p := pointFor(ev)
	if p == nil {
		return nil
	}
	if err := s.api.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// pointFor returns nil for events that carry no metrics.
func pointFor(ev Event) *write.Point {
	switch data := ev.Data.(type) {
	case *types.Shift:
		p := influxdb2.NewPointWithMeasurement(measurementShift).
			AddTag("machineId", data.MachineID).
			AddTag("machineType", data.MachineType).
			AddTag("shiftId", data.ShiftID).
			AddTag("status", string(data.Status)).
			AddField("duration", data.Duration).
			AddField("pausedMinutes", data.TimeTracking.ShiftPausedTime).
			AddField("targetWeight", data.Monitoring.TargetWeight).
			AddField("errorCode", int64(data.Monitoring.ErrorCode)).
			SetTime(ev.Timestamp)
		for variant, v := range data.Monitoring.TotalWeightFilled {
			p.AddField("weight_"+variant, v)
		}
		for variant, v := range data.Monitoring.TotalBottles {
			p.AddField("bottles_"+variant, v)
		}
		for variant, v := range data.Efficiency {
			p.AddField("efficiency_"+variant, v)
		}
		return p

	case *types.Machine:
		return influxdb2.NewPointWithMeasurement(measurementMachine).
			AddTag("machineId", data.MachineID).
			AddTag("machineType", data.Type).
			AddField("connected", data.IsConnected).
			AddField("status", string(data.Status)).
			AddField("uptimeSeconds", data.UptimeSeconds).
			AddField("downtimeSeconds", data.DowntimeSeconds).
			SetTime(ev.Timestamp)
	}
	return nil
}
