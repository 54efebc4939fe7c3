package api

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"supertrend-core/internal/events"
	"supertrend-core/internal/logger"
	"supertrend-core/internal/supervisor"
)

// EngineService is the health service name that tracks the trading loop.
const EngineService = "supertrend.Engine"

// HealthServer exposes grpc.health.v1. The process is always SERVING; the
// EngineService entry is SERVING only while the loop is RUNNING.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	engine Engine

	updates <-chan any
	unsub   func()
}

func NewHealthServer(engine Engine, bus *events.Bus) *HealthServer {
	h := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		engine: engine,
	}
	if bus != nil {
		h.updates, h.unsub = bus.Subscribe(events.EventStatusChange, 16)
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.sync(engine.Status())
	return h
}

func (h *HealthServer) sync(st supervisor.BotStatus) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st.State == supervisor.StateRunning {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(EngineService, status)
}

// Serve accepts on lis until ctx is done, following engine status changes.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	if h.updates != nil {
		go func() {
			defer h.unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case <-h.updates:
					// The payload may be stale by the time it is read.
					h.sync(h.engine.Status())
				}
			}
		}()
	}
	go func() {
		<-ctx.Done()
		h.health.Shutdown()
		h.grpc.GracefulStop()
	}()

	logger.Infof("gRPC health listening on %s", lis.Addr())
	if err := h.grpc.Serve(lis); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
