package telemetry

import (
	"context"
	"log"
	"time"

	"predictive-drilling/engine/internal/publish"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the cycle loop stops before
// shutting down OTel providers, so in-flight async emits have time to complete.
// Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the detection
// loop is not blocked. Fire-and-forget; errors are logged.
//
// emitter and env may be nil; EmitAsync returns immediately without starting
// a goroutine. The goroutine uses context.Background() with emitTimeout so
// cycle cancellation does not abort an in-flight emit.
func EmitAsync(emitter EventEmitter, ctx context.Context, env *publish.Envelope) {
	if emitter == nil || env == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, env); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
