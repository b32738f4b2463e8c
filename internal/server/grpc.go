package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "session-control-plane/internal/health/handler"
	"session-control-plane/internal/server/interceptors"
	"session-control-plane/internal/telemetry"
)

// Standard health RPCs; always callable without a token.
var healthMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
}

// Deps holds what the host server needs. Verifier is required; the rest are optional.
type Deps struct {
	// Verifier checks bearer tokens on every non-public RPC (the token engine).
	Verifier interceptors.TokenVerifier
	// PublicMethods lists full method names callable without a token, in addition to the health RPCs.
	PublicMethods []string
	// Events receives one event per RPC. If nil, RPCs are not recorded.
	Events telemetry.EventEmitter
	// Health is published as the grpc.health.v1 service. If nil, health is not registered.
	Health *healthhandler.Checker
	// Options are appended after the defaults (e.g. TLS credentials).
	Options []grpc.ServerOption
}

// NewServer builds the gRPC host: OTel stats handler, auth then telemetry interceptors (so
// recorded events carry the caller's claims), and the standard health service.
// Embedding applications register their services on it.
func NewServer(deps Deps) *grpc.Server {
	public := PublicMethodSet(deps.PublicMethods)
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Verifier, public),
			interceptors.TelemetryUnary(deps.Events, healthSkip()),
		),
		grpc.ChainStreamInterceptor(
			interceptors.AuthStream(deps.Verifier, public),
		),
	}
	opts = append(opts, deps.Options...)

	s := grpc.NewServer(opts...)
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.Server())
	}
	return s
}

// PublicMethodSet merges extra with the health RPCs.
func PublicMethodSet(extra []string) map[string]bool {
	set := make(map[string]bool, len(extra)+len(healthMethods))
	for _, m := range healthMethods {
		set[m] = true
	}
	for _, m := range extra {
		set[m] = true
	}
	return set
}

func healthSkip() map[string]bool {
	skip := make(map[string]bool, len(healthMethods))
	for _, m := range healthMethods {
		skip[m] = true
	}
	return skip
}
