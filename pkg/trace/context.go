// Package trace defines the per-call span record populated as interception
// proceeds, and the tracer that creates and finalizes spans.
package trace

import (
	"time"

	"github.com/google/uuid"
)

// Context is the mutable record for a single interception span. Each field
// group is written by exactly one component along the call path: the risk
// component writes risk fields, the policy component writes policy fields,
// the token component writes exec token fields, and the shadow lane writes
// shadow fields into its own child context.
type Context struct {
	Service      string     `json:"service"`
	Model        string     `json:"model,omitempty"`
	ToolName     string     `json:"tool_name,omitempty"`
	TraceID      string     `json:"trace_id"`
	SpanID       string     `json:"span_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`

	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	Retries          int      `json:"retries"`
	FallbackUsed     bool     `json:"fallback_used"`
	Confidence       *float64 `json:"confidence,omitempty"`

	RiskTier         string `json:"risk_tier,omitempty"`
	PromptTemplateID string `json:"prompt_template_id,omitempty"`
	PromptSizeChars  int    `json:"prompt_size_chars"`

	IsShadow            bool   `json:"is_shadow"`
	ShadowParentTraceID string `json:"shadow_parent_trace_id,omitempty"`
	GateBlocked         bool   `json:"gate_blocked"`
	FallbackType        string `json:"fallback_type,omitempty"`
	FallbackReason      string `json:"fallback_reason,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Method    string `json:"method,omitempty"`

	// Risk vector fields.
	PromptHash             string   `json:"prompt_hash,omitempty"`
	ToolArgsHash           string   `json:"tool_args_hash,omitempty"`
	GroundingRisk          *float64 `json:"grounding_risk,omitempty"`
	SelfConsistencyRisk    *float64 `json:"self_consistency_risk,omitempty"`
	NumericInstabilityRisk *float64 `json:"numeric_instability_risk,omitempty"`
	ToolMismatchRisk       *float64 `json:"tool_mismatch_risk,omitempty"`
	DriftRisk              *float64 `json:"drift_risk,omitempty"`
	VerifierRisk           *float64 `json:"verifier_risk,omitempty"`
	CompositeRiskScore     *float64 `json:"composite_risk_score,omitempty"`
	CompositeRiskLevel     string   `json:"composite_risk_level,omitempty"`

	// Policy fields.
	ToolCriticality string `json:"tool_criticality,omitempty"`
	PolicyDecision  string `json:"policy_decision,omitempty"`
	PolicyID        string `json:"policy_id,omitempty"`
	PolicyVersion   string `json:"policy_version,omitempty"`

	// Execution token fields.
	ExecTokenID       string `json:"exec_token_id,omitempty"`
	ExecTokenTTLMS    *int64 `json:"exec_token_ttl_ms,omitempty"`
	ExecTokenHash     string `json:"exec_token_hash,omitempty"`
	ExecTokenVerified *bool  `json:"exec_token_verified,omitempty"`

	// Shadow lane fields, written only on shadow child contexts.
	ShadowDisagreementScore *float64 `json:"shadow_disagreement_score,omitempty"`
	ShadowNumericVariance   *float64 `json:"shadow_numeric_variance,omitempty"`
}

// Finish stamps the span end time.
func (c *Context) Finish() {
	now := time.Now().UTC()
	c.EndTime = &now
}

// Tracer creates spans for one logical service.
type Tracer struct {
	Service string
}

// NewTracer creates a tracer for the named service.
func NewTracer(service string) *Tracer {
	return &Tracer{Service: service}
}

// StartSpan creates a new span. A non-nil parent keeps the parent's trace id
// and records the parent span id.
func (t *Tracer) StartSpan(model, toolName string, parent *Context) *Context {
	span := &Context{
		Service:   t.Service,
		Model:     model,
		ToolName:  toolName,
		TraceID:   uuid.NewString(),
		SpanID:    uuid.NewString(),
		StartTime: time.Now().UTC(),
	}
	if parent != nil {
		span.TraceID = parent.TraceID
		span.ParentSpanID = parent.SpanID
	}
	return span
}

// EndSpan finalizes the span.
func (t *Tracer) EndSpan(span *Context) *Context {
	span.Finish()
	return span
}
