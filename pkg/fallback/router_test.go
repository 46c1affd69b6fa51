package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteWithoutHandlerReturnsTemplate(t *testing.T) {
	router := NewRouter()

	result, source := router.Route(context.Background(), "initiate_wire_transfer", map[string]any{"amount": 100.0}, "high_criticality_block_threshold")
	assert.Equal(t, SourceTemplate, source)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "blocked", m["status"])
	assert.Equal(t, "initiate_wire_transfer", m["tool"])
	assert.Equal(t, "high_criticality_block_threshold", m["reason"])
}

func TestRouteWithHandler(t *testing.T) {
	router := NewRouter()
	router.Register("initiate_wire_transfer", DraftHandler)

	result, source := router.Route(context.Background(), "initiate_wire_transfer", map[string]any{"amount": 100.0}, "blocked")
	assert.Equal(t, SourceSafeTool, source)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "draft_created", m["status"])
	assert.Equal(t, map[string]any{"amount": 100.0}, m["tool_args"])
}

func TestRouteHandlerErrorFallsBackToTemplate(t *testing.T) {
	router := NewRouter()
	router.Register("t", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	result, source := router.Route(context.Background(), "t", nil, "reason")
	assert.Equal(t, SourceTemplate, source)
	assert.Equal(t, "blocked", result.(map[string]any)["status"])
}

func TestReviewResponse(t *testing.T) {
	m := ReviewResponse("issue_invoice_refund", "medium_criticality_review_threshold")
	assert.Equal(t, "review_required", m["status"])
	assert.Equal(t, "issue_invoice_refund", m["tool"])
	assert.Equal(t, "medium_criticality_review_threshold", m["reason"])
}
