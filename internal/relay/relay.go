package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/interfaces"
	"github.com/KevinKickass/OpenFillMonitor/internal/types"
)

// Sink delivers events to one downstream transport.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
	Close() error
}

var _ interfaces.Publisher = (*Relay)(nil)

// Relay fans machine and shift updates out to its sinks. Publishing never
// blocks: events are buffered and delivered by a single dispatcher, and an
// event that does not fit the buffer is dropped. Delivery is best effort,
// failed deliveries are not retried.
type Relay struct {
	events  chan Event
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New starts a relay dispatching to sinks.
func New(cfg config.RelayConfig, logger *zap.Logger, sinks ...Sink) *Relay {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	r := &Relay{
		events:  make(chan Event, size),
		sinks:   sinks,
		timeout: cfg.Timeout,
		logger:  logger.Named("relay"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go r.dispatch()
	return r
}

func (r *Relay) PublishMachine(m *types.Machine) {
	r.Publish(NewMachineEvent(m, r.now()))
}

func (r *Relay) PublishShift(s *types.Shift) {
	r.Publish(NewShiftEvent(s, r.now()))
}

func (r *Relay) Publish(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.events <- ev:
		r.published.Add(1)
	default:
		r.dropped.Add(1)
		r.logger.Warn("Relay buffer full, event dropped",
			zap.String("type", string(ev.Type)),
			zap.String("machine_id", ev.MachineID),
			zap.String("shift_id", ev.ShiftID))
	}
}

func (r *Relay) dispatch() {
	defer close(r.done)

	for ev := range r.events {
		for _, sink := range r.sinks {
			r.deliver(sink, ev)
		}
	}
}

func (r *Relay) deliver(sink Sink, ev Event) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := sink.Deliver(ctx, ev); err != nil {
		r.failed.Add(1)
		r.logger.Warn("Relay delivery failed",
			zap.String("sink", sink.Name()),
			zap.String("type", string(ev.Type)),
			zap.String("machine_id", ev.MachineID),
			zap.Error(err))
		return
	}
	r.delivered.Add(1)
}

func (r *Relay) Stats() interfaces.RelayStats {
	return interfaces.RelayStats{
		Published: r.published.Load(),
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
	}
}

// Close stops accepting events, drains the buffer until ctx is done and
// closes every sink.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	var errs []error
	select {
	case <-r.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("relay drain: %w", ctx.Err()))
	}

	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
