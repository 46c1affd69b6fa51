// Package exporters ships completed trace spans to external sinks. The core
// never depends on a specific backend; implementations are pluggable.
package exporters

import (
	"context"

	"github.com/Mindburn-Labs/vigil/pkg/trace"
)

// Exporter receives one completed span per interception.
type Exporter interface {
	Export(ctx context.Context, span *trace.Context) error
	Close(ctx context.Context) error
}

// Noop discards every span. Useful as a default and in tests.
type Noop struct{}

// Export implements Exporter.
func (Noop) Export(ctx context.Context, span *trace.Context) error { return nil }

// Close implements Exporter.
func (Noop) Close(ctx context.Context) error { return nil }
