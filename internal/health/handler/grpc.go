package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks a dependency needed for readiness, e.g. *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// Checker drives the standard gRPC health service from a readiness probe.
// The overall ("") service and every name in services share one status.
type Checker struct {
	srv      *health.Server
	pinger   Pinger
	services []string
}

// NewChecker returns a Checker backed by a fresh health server. A nil pinger is always SERVING.
func NewChecker(pinger Pinger, services ...string) *Checker {
	return &Checker{srv: health.NewServer(), pinger: pinger, services: services}
}

// Server returns the health service to register on a gRPC server.
func (c *Checker) Server() healthpb.HealthServer {
	return c.srv
}

// Refresh probes the pinger and publishes the result. It returns the published status.
func (c *Checker) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := c.pinger.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Printf("health: readiness ping failed: %v", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.set(status)
	return status
}

// Run refreshes every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates. Call before GracefulStop.
func (c *Checker) Shutdown() {
	c.srv.Shutdown()
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.srv.SetServingStatus("", status)
	for _, name := range c.services {
		c.srv.SetServingStatus(name, status)
	}
}
