package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-control-plane/internal/app"
	"session-control-plane/internal/config"
	"session-control-plane/internal/db"
	healthhandler "session-control-plane/internal/health/handler"
	"session-control-plane/internal/server"
	"session-control-plane/internal/telemetry"
	telemetryotel "session-control-plane/internal/telemetry/otel"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	components, err := app.Build(cfg, conn, events)
	if err != nil {
		log.Fatalf("wire: %v", err)
	}

	health := healthhandler.NewChecker(conn)
	go health.Run(ctx, healthInterval)

	s := server.NewServer(server.Deps{
		Verifier: components.Tokens,
		Events:   events,
		Health:   health,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	health.Shutdown()
	cancel()
	s.GracefulStop()
	log.Println("gRPC server stopped")

	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
}
