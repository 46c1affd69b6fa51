// Package fallback routes blocked tool calls to deterministic safe handlers
// and provides the response templates for blocked and review outcomes.
package fallback

import (
	"context"
	"log/slog"
	"sync"
)

// Handler produces a safe substitute result for a blocked tool call.
type Handler func(ctx context.Context, toolArgs map[string]any) (any, error)

// Source labels where a fallback response came from.
const (
	SourceSafeTool = "safe_tool"
	SourceTemplate = "template"
)

// Router maps tool names to safe handlers.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Register installs a safe handler for a tool.
func (r *Router) Register(toolName string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[toolName] = handler
}

// Route returns the safe substitute for a blocked call. With no registered
// handler, or when the handler itself fails, the deterministic block template
// is returned instead.
func (r *Router) Route(ctx context.Context, toolName string, toolArgs map[string]any, reason string) (any, string) {
	r.mu.RLock()
	handler := r.routes[toolName]
	r.mu.RUnlock()

	if handler == nil {
		return BlockResponse(toolName, reason), SourceTemplate
	}
	result, err := handler(ctx, toolArgs)
	if err != nil {
		slog.Warn("fallback handler failed, using block template", "tool", toolName, "error", err)
		return BlockResponse(toolName, reason), SourceTemplate
	}
	return result, SourceSafeTool
}

// BlockResponse is the deterministic template for blocked executions.
func BlockResponse(toolName, reason string) map[string]any {
	return map[string]any{
		"status":  "blocked",
		"tool":    toolName,
		"reason":  reason,
		"message": "Execution blocked by Vigil policy.",
	}
}

// ReviewResponse is the deterministic template for review-gated executions.
// Review decisions bypass the router entirely.
func ReviewResponse(toolName, reason string) map[string]any {
	return map[string]any{
		"status":  "review_required",
		"tool":    toolName,
		"reason":  reason,
		"message": "Execution requires human review before proceeding.",
	}
}

// DraftHandler is a ready-made safe handler that turns a blocked execution
// into a draft for human review.
func DraftHandler(ctx context.Context, toolArgs map[string]any) (any, error) {
	_ = ctx
	return map[string]any{
		"status":    "draft_created",
		"tool_args": toolArgs,
		"message":   "Execution blocked for safety; draft created for human review.",
	}, nil
}
