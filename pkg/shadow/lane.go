package shadow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/exporters"
	"github.com/Mindburn-Labs/vigil/pkg/trace"
)

// Run compares the primary answer against the shadow answer, records the
// metrics on a new child span marked as shadow, and exports it. Export
// failures are logged, never returned to the primary path.
func Run(ctx context.Context, parent *trace.Context, primaryAnswer, shadowAnswer string, exporter exporters.Exporter) *trace.Context {
	span := &trace.Context{
		Service:             parent.Service,
		Model:               parent.Model,
		ToolName:            parent.ToolName,
		TraceID:             parent.TraceID,
		SpanID:              uuid.NewString(),
		ParentSpanID:        parent.SpanID,
		StartTime:           time.Now().UTC(),
		IsShadow:            true,
		ShadowParentTraceID: parent.TraceID,
	}

	disagreement := DisagreementScore(primaryAnswer, shadowAnswer)
	variance := NumericVariance(primaryAnswer, shadowAnswer)
	span.ShadowDisagreementScore = &disagreement
	span.ShadowNumericVariance = &variance
	span.Finish()

	if exporter != nil {
		if err := exporter.Export(ctx, span); err != nil {
			slog.Warn("shadow lane export failed",
				"component", "shadow",
				"trace_id", span.TraceID,
				"error", err)
		}
	}
	return span
}

// Schedule runs the shadow comparison on a detached goroutine. Panics are
// recovered and logged so a shadow failure can never fail the primary call.
func Schedule(parent *trace.Context, primaryAnswer, shadowAnswer string, exporter exporters.Exporter) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("shadow lane panicked",
					"component", "shadow",
					"trace_id", parent.TraceID,
					"panic", r)
			}
		}()
		Run(context.Background(), parent, primaryAnswer, shadowAnswer, exporter)
	}()
}
