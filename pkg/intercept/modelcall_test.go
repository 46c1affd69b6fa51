package intercept

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCallExecutesFunction(t *testing.T) {
	ic, exp := newTestInterceptor(t)

	answer, err := ic.InterceptModelCall(context.Background(), ModelCall{
		Model:  "gpt-4o",
		Prompt: "Summarize invoice INV-445.",
		Fn: func(ctx context.Context, prompt string) (string, error) {
			return "Invoice INV-445 totals 54.90 USD.", nil
		},
		RequestID: "req-model-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-445 totals 54.90 USD.", answer)

	span := exp.primary()
	require.NotNil(t, span)
	assert.Equal(t, "sampling/createMessage", span.Method)
	assert.Equal(t, "req-model-1", span.RequestID)
	assert.Greater(t, span.PromptTokens, 0)
	assert.Greater(t, span.CompletionTokens, 0)
	assert.NotNil(t, span.EndTime)
}

func TestModelCallManualResponse(t *testing.T) {
	ic, exp := newTestInterceptor(t)

	answer, err := ic.InterceptModelCall(context.Background(), ModelCall{
		Model:    "gpt-4o",
		Prompt:   "Summarize invoice INV-445.",
		Response: "Invoice INV-445 totals 54.90 USD.",
		Retries:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-445 totals 54.90 USD.", answer)

	span := exp.primary()
	require.NotNil(t, span)
	assert.Equal(t, 2, span.Retries)
}

func TestModelCallErrorStillExports(t *testing.T) {
	ic, exp := newTestInterceptor(t)

	boom := errors.New("model unavailable")
	_, err := ic.InterceptModelCall(context.Background(), ModelCall{
		Model:  "gpt-4o",
		Prompt: "Summarize invoice INV-445.",
		Fn: func(ctx context.Context, prompt string) (string, error) {
			return "", boom
		},
	})
	require.ErrorIs(t, err, boom)

	span := exp.primary()
	require.NotNil(t, span, "span exported despite model error")
	assert.Equal(t, 0, span.CompletionTokens)
	assert.NotNil(t, span.EndTime)
}

func TestModelCallRequiresFunctionOrResponse(t *testing.T) {
	ic, exp := newTestInterceptor(t)

	_, err := ic.InterceptModelCall(context.Background(), ModelCall{
		Model:  "gpt-4o",
		Prompt: "Summarize invoice INV-445.",
	})
	assert.Error(t, err)
	assert.Equal(t, 0, exp.count())
}

func TestModelCallFallbackCounted(t *testing.T) {
	ic, _ := newTestInterceptor(t)

	_, err := ic.InterceptModelCall(context.Background(), ModelCall{
		Model:        "gpt-4o",
		Prompt:       "Summarize invoice INV-445.",
		Response:     "Invoice INV-445 totals 54.90 USD.",
		FallbackUsed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ic.Metrics().Snapshot().FallbackRate)
}
