package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this module.
const TracerName = "github.com/josephgoksu/KnowledgeWing"

// Tracer returns the module tracer from the global provider. It is a no-op
// unless the host process installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
