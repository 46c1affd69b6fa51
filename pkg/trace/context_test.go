package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpanRoot(t *testing.T) {
	tracer := NewTracer("vigil-test")
	span := tracer.StartSpan("gpt-4o", "issue_invoice_refund", nil)

	assert.Equal(t, "vigil-test", span.Service)
	assert.Equal(t, "issue_invoice_refund", span.ToolName)
	assert.NotEmpty(t, span.TraceID)
	assert.NotEmpty(t, span.SpanID)
	assert.NotEqual(t, span.TraceID, span.SpanID)
	assert.Empty(t, span.ParentSpanID)
	assert.Nil(t, span.EndTime)
}

func TestStartSpanChildSharesTrace(t *testing.T) {
	tracer := NewTracer("vigil-test")
	parent := tracer.StartSpan("", "t", nil)
	child := tracer.StartSpan("", "t", parent)

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestEndSpanStampsEndTime(t *testing.T) {
	tracer := NewTracer("vigil-test")
	span := tracer.StartSpan("", "t", nil)
	tracer.EndSpan(span)

	require.NotNil(t, span.EndTime)
	assert.False(t, span.EndTime.Before(span.StartTime))
}
