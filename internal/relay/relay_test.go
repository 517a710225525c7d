package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
	closed bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(ctx context.Context, ev Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func relayConfig(size int, timeout time.Duration) config.RelayConfig {
	return config.RelayConfig{BufferSize: size, Timeout: timeout}
}

func TestRelayDeliversToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	r := New(relayConfig(8, time.Second), zap.NewNop(), a, b)

	m := &types.Machine{MachineID: "MACHINE_001", Status: types.MachineOnline}
	r.PublishMachine(m)
	r.PublishShift(&types.Shift{ShiftID: "M1_S3", MachineID: "MACHINE_001"})

	require.NoError(t, r.Close(context.Background()))

	for _, sink := range []*recordingSink{a, b} {
		events := sink.received()
		require.Len(t, events, 2)
		assert.Equal(t, EventMachineUpdate, events[0].Type)
		assert.Equal(t, "MACHINE_001", events[0].MachineID)
		assert.Equal(t, EventShiftChanged, events[1].Type)
		assert.Equal(t, "M1_S3", events[1].ShiftID)
		assert.True(t, sink.closed)
	}

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(4), stats.Delivered)
	assert.Zero(t, stats.Failed)
}

func TestRelaySnapshotsPayload(t *testing.T) {
	sink := &recordingSink{}
	r := New(relayConfig(8, time.Second), zap.NewNop(), sink)

	m := &types.Machine{MachineID: "MACHINE_001", Status: types.MachineOnline}
	r.PublishMachine(m)
	m.Status = types.MachineOffline

	require.NoError(t, r.Close(context.Background()))
	events := sink.received()
	require.Len(t, events, 1)
	assert.Equal(t, types.MachineOnline, events[0].Data.(*types.Machine).Status)
}

func TestRelayDropsWhenBufferFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	r := New(relayConfig(1, time.Minute), zap.NewNop(), sink)

	// Whatever the dispatcher has taken, at most two events fit: one in
	// flight and one buffered.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.PublishMachine(&types.Machine{MachineID: "MACHINE_001"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked")
	}

	assert.GreaterOrEqual(t, r.Stats().Dropped, uint64(3))

	close(sink.block)
	require.NoError(t, r.Close(context.Background()))
}

func TestRelaySinkFailureIsCounted(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	r := New(relayConfig(4, time.Second), zap.NewNop(), failing, ok)

	r.PublishShift(&types.Shift{ShiftID: "M1_S1", MachineID: "MACHINE_001"})
	require.NoError(t, r.Close(context.Background()))

	assert.Len(t, ok.received(), 1)
	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Delivered)
}

func TestRelaySinkTimeout(t *testing.T) {
	slow := &recordingSink{block: make(chan struct{})}
	r := New(relayConfig(4, 20*time.Millisecond), zap.NewNop(), slow)

	r.PublishMachine(&types.Machine{MachineID: "MACHINE_001"})
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, uint64(1), r.Stats().Failed)
	assert.Empty(t, slow.received())
}

func TestRelayPublishAfterClose(t *testing.T) {
	r := New(relayConfig(4, time.Second), zap.NewNop())
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))

	r.PublishMachine(&types.Machine{MachineID: "MACHINE_001"})
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestMQTTTopic(t *testing.T) {
	machine := NewMachineEvent(&types.Machine{MachineID: "MACHINE_001"}, time.Now())
	shift := NewShiftEvent(&types.Shift{ShiftID: "M1_S4", MachineID: "MACHINE_001"}, time.Now())

	assert.Equal(t, "ofm/machines/MACHINE_001", mqttTopic("ofm", machine))
	assert.Equal(t, "ofm/shifts/MACHINE_001/M1_S4", mqttTopic("ofm", shift))
}

func TestKafkaMessage(t *testing.T) {
	ev := NewShiftEvent(&types.Shift{ShiftID: "M1_S4", MachineID: "MACHINE_001"}, time.Now())

	msg, err := kafkaMessage(ev)
	require.NoError(t, err)
	assert.Equal(t, "M1_S4", string(msg.Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "shift_changed", decoded["type"])
	assert.Equal(t, ev.ID.String(), decoded["id"])

	machine := NewMachineEvent(&types.Machine{MachineID: "MACHINE_002"}, time.Now())
	msg, err = kafkaMessage(machine)
	require.NoError(t, err)
	assert.Equal(t, "MACHINE_002", string(msg.Key))
}

func TestInfluxPoint(t *testing.T) {
	shift := &types.Shift{
		ShiftID:     "M1_S4",
		MachineID:   "MACHINE_001",
		MachineType: types.MachineTypeSalt,
		Status:      types.ShiftActive,
		Duration:    90,
		Efficiency:  types.Variants{"total": 84.5},
	}
	shift.Monitoring.TotalWeightFilled = types.Variants{"total": 1500}

	p := pointFor(NewShiftEvent(shift, time.Now()))
	require.NotNil(t, p)
	assert.Equal(t, "shift_metrics", p.Name())

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 90.0, fields["duration"])
	assert.Equal(t, 84.5, fields["efficiency_total"])
	assert.Equal(t, 1500.0, fields["weight_total"])

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "M1_S4", tags["shiftId"])

	p = pointFor(NewMachineEvent(&types.Machine{MachineID: "MACHINE_001", IsConnected: true}, time.Now()))
	require.NotNil(t, p)
	assert.Equal(t, "machine_status", p.Name())

	assert.Nil(t, pointFor(Event{Data: "unknown"}))
}
