package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "docflow"

// GRPC is the gRPC listener: health checking plus reflection for grpcurl.
type GRPC struct {
	Server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewGRPC(logger *slog.Logger) *GRPC {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return &GRPC{Server: s, health: hs, logger: logger}
}

// SetServing flips both the overall and the named service status.
func (g *GRPC) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", st)
	g.health.SetServingStatus(ServiceName, st)
}

// WatchHealth polls check every interval and mirrors the result into the
// health service until ctx ends.
func (g *GRPC) WatchHealth(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	probe := func() {
		cctx, cancel := context.WithTimeout(ctx, interval/2)
		defer cancel()
		err := check(cctx)
		if err != nil && ctx.Err() == nil {
			g.logger.Warn("health probe failed", "error", err)
		}
		g.SetServing(err == nil)
	}
	probe()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probe()
		}
	}
}

// Stop marks the server not serving and drains in-flight RPCs.
func (g *GRPC) Stop() {
	g.health.Shutdown()
	g.Server.GracefulStop()
}
