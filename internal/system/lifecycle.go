package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/KevinKickass/OpenFillMonitor/internal/api/rest"
	"github.com/KevinKickass/OpenFillMonitor/internal/api/websocket"
	"github.com/KevinKickass/OpenFillMonitor/internal/config"
	"github.com/KevinKickass/OpenFillMonitor/internal/interfaces"
	"github.com/KevinKickass/OpenFillMonitor/internal/machinetype"
	"github.com/KevinKickass/OpenFillMonitor/internal/poller"
	"github.com/KevinKickass/OpenFillMonitor/internal/relay"
	"github.com/KevinKickass/OpenFillMonitor/internal/storage"
)

// PollerHealthService is the gRPC health service name that reports
// SERVING while machines are being scanned.
const PollerHealthService = "openfillmonitor.Poller"

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

type LifecycleManager struct {
	config   *config.Config
	storage  storage.Store
	registry *machinetype.Registry
	hub      *websocket.Hub
	relay    *relay.Relay
	scanner  *poller.Scanner
	logger   *zap.Logger

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server
	grpcAddr   net.Addr
	stopHub    context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager assembles the machine type registry, the relay with
// its sinks and the scanner on top of store.
func NewLifecycleManager(store storage.Store, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	registry, err := machinetype.NewRegistry(cfg.MachineTypes.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load machine types: %w", err)
	}

	hub := websocket.NewHub(logger)
	r := relay.New(cfg.Relay, logger, relay.BuildSinks(cfg.Relay, hub, logger)...)
	scanner := poller.NewScanner(cfg.Poller, cfg.Modbus, store, store, registry, r, logger)

	return &LifecycleManager{
		config:       cfg,
		storage:      store,
		registry:     registry,
		hub:          hub,
		relay:        r,
		scanner:      scanner,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenFillMonitor",
		zap.Strings("machine_types", lm.registry.Types()))
	lm.setState(StateInitializing)

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.stopHub = cancel
	go lm.hub.Run(hubCtx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.scanner.StartPolling()
	lm.health.SetServingStatus(PollerHealthService, healthpb.HealthCheckResponse_SERVING)

	lm.stateMu.Lock()
	lm.currentState = StateRunning
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort))

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// gracefulShutdown stops the scanner first so that the last cycle's
// updates still reach the relay, then drains the relay.
func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	if lm.health != nil {
		lm.health.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		lm.scanner.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("scanner stop: %w", ctx.Err()))
	}

	if lm.restServer != nil {
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	if err := lm.relay.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if lm.grpcServer != nil {
		lm.logger.Info("Stopping gRPC server")
		grpcStopped := make(chan struct{})
		go func() {
			lm.grpcServer.GracefulStop()
			close(grpcStopped)
		}()
		select {
		case <-grpcStopped:
		case <-ctx.Done():
			lm.grpcServer.Stop()
		}
	}

	if lm.stopHub != nil {
		lm.stopHub()
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()
	lm.health = health.NewServer()
	lm.health.SetServingStatus(PollerHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config.Server, lm, lm.logger, lm.hub)
	return lm.restServer.Start()
}

// GRPCAddr returns the bound gRPC address once started.
func (lm *LifecycleManager) GRPCAddr() net.Addr {
	return lm.grpcAddr
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, startedAt := lm.currentState, lm.startedAt
	lm.stateMu.RUnlock()

	return interfaces.SystemStatus{
		State:            state.String(),
		StartedAt:        startedAt,
		Scanner:          lm.scanner.Stats(),
		Relay:            lm.relay.Stats(),
		MachineTypes:     lm.registry.Types(),
		WebSocketClients: lm.hub.GetClientCount(),
	}
}

// ReloadMachineTypes re-reads descriptor overrides from the search paths.
func (lm *LifecycleManager) ReloadMachineTypes() error {
	if err := lm.registry.Reload(); err != nil {
		lm.logger.Error("Machine type reload failed", zap.Error(err))
		return err
	}
	lm.logger.Info("Machine types reloaded", zap.Strings("machine_types", lm.registry.Types()))
	return nil
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}
