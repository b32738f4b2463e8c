// Worker runs the maintenance loop: expired session credential cleanup, API credential expiry and purge.
// CLEANUP_INTERVAL sets the period. GRPC_ADDR is required by config but unused (e.g. set to :0).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"session-control-plane/internal/app"
	"session-control-plane/internal/config"
	"session-control-plane/internal/db"
	"session-control-plane/internal/telemetry"
	telemetryotel "session-control-plane/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName + "-worker",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("worker: telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: db: %v", err)
	}
	defer conn.Close()

	components, err := app.Build(cfg, conn, telemetryotel.NewEventEmitter(providers.LoggerProvider))
	if err != nil {
		log.Fatalf("worker: wire: %v", err)
	}

	log.Printf("worker: running maintenance every %s (session grace %s, api retention %d days)",
		cfg.CleanupEvery(), cfg.SessionGrace(), cfg.APITokenRetentionDays)
	components.Maintenance.Run(ctx, cfg.CleanupEvery())
	log.Println("worker: stopped")

	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker: telemetry shutdown: %v", err)
	}
}
