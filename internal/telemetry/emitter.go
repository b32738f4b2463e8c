// Package telemetry carries credential lifecycle events to an exporter without blocking callers.
package telemetry

import (
	"context"

	"session-control-plane/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
