package telemetry

import (
	"context"
	"log"
	"maps"
	"time"

	"session-control-plane/internal/telemetry/domain"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long cmd/server waits after GracefulStop before shutting down
// the OTel providers. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync hands a snapshot of event to emitter on a background goroutine and returns at once.
// Credential paths (mint, revoke, cascade) must never wait on or fail because of export.
// A nil emitter or event is a no-op. Failures are logged.
func EmitAsync(emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	snap := snapshot(event)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, snap); err != nil {
			log.Printf("telemetry: emit %s for %q failed: %v", snap.Type, snap.Subject, err)
		}
	}()
}

// snapshot copies event so later caller mutations cannot race the exporter.
func snapshot(event *domain.Event) *domain.Event {
	out := *event
	if event.Attributes != nil {
		out.Attributes = maps.Clone(event.Attributes)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	return &out
}
