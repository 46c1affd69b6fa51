package intercept

import (
	"context"
	"fmt"
)

// ModelFunc produces a model answer for a prompt.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// ModelCall describes one model invocation to instrument. Either Fn or an
// already-computed Response must be supplied; with Fn set the interceptor
// executes the call itself, otherwise it records the response as-is.
type ModelCall struct {
	Model    string
	Prompt   string
	ToolName string

	Fn       ModelFunc
	Response string

	Retries      int
	FallbackUsed bool
	Confidence   *float64

	PromptTemplateID string
	RequestID        string
	SessionID        string
}

// InterceptModelCall records telemetry around a model call: a span with
// token estimates is opened, the call executed (or the supplied response
// taken), and the span exported best-effort. The model error, if any, is
// returned after the span is finalized and exported.
func (i *Interceptor) InterceptModelCall(ctx context.Context, call ModelCall) (string, error) {
	if call.Fn == nil && call.Response == "" {
		return "", fmt.Errorf("intercept: model call needs a function or a response")
	}

	span := i.tracer.StartSpan(call.Model, call.ToolName, nil)
	span.Method = "sampling/createMessage"
	span.PromptTemplateID = call.PromptTemplateID
	span.RequestID = call.RequestID
	span.SessionID = call.SessionID
	span.PromptSizeChars = len(call.Prompt)
	span.PromptTokens = estimateTokens(call.Prompt)
	span.Retries = call.Retries
	span.FallbackUsed = call.FallbackUsed
	span.Confidence = call.Confidence

	i.metrics.record(func(m *Metrics) {
		m.totalCalls++
		if call.FallbackUsed {
			m.fallbacks++
		}
	})

	answer := call.Response
	var err error
	if call.Fn != nil {
		answer, err = call.Fn(ctx, call.Prompt)
	}
	span.CompletionTokens = estimateTokens(answer)

	i.tracer.EndSpan(span)
	if expErr := i.exporter.Export(ctx, span); expErr != nil {
		i.metrics.record(func(m *Metrics) { m.exportFailures++ })
		i.log.Warn("span export failed", "trace_id", span.TraceID, "error", expErr)
	}

	if err != nil {
		return "", err
	}
	return answer, nil
}
