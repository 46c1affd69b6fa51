package exporters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Mindburn-Labs/vigil/pkg/trace"
)

const insertTraceSQL = `INSERT INTO mcp_traces (
	trace_id, span_id, parent_span_id, service, model, tool_name,
	start_time, end_time, prompt_tokens, completion_tokens, retries,
	fallback_used, confidence, risk_tier, prompt_template_id, prompt_hash,
	prompt_size_chars, is_shadow, shadow_parent_trace_id, gate_blocked,
	fallback_type, fallback_reason, request_id, session_id, method,
	tool_args_hash, tool_criticality, policy_decision, policy_id,
	policy_version, grounding_risk, self_consistency_risk,
	numeric_instability_risk, tool_mismatch_risk, drift_risk, verifier_risk,
	composite_risk_score, composite_risk_level, shadow_disagreement_score,
	shadow_numeric_variance, exec_token_id, exec_token_ttl_ms,
	exec_token_hash, exec_token_verified
) VALUES (
	$1::uuid, $2::uuid, $3::uuid, $4, $5, $6,
	$7, $8, $9, $10, $11,
	$12, $13, $14, $15, $16,
	$17, $18, $19, $20,
	$21, $22, $23, $24, $25,
	$26, $27, $28, $29,
	$30, $31, $32,
	$33, $34, $35, $36,
	$37, $38, $39,
	$40, $41, $42,
	$43, $44
)`

const createTracesSQL = `CREATE TABLE IF NOT EXISTS mcp_traces (
	trace_id UUID NOT NULL,
	span_id UUID PRIMARY KEY,
	parent_span_id UUID,
	service TEXT NOT NULL,
	model TEXT,
	tool_name TEXT,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	retries INTEGER NOT NULL DEFAULT 0,
	fallback_used BOOLEAN NOT NULL DEFAULT FALSE,
	confidence DOUBLE PRECISION,
	risk_tier TEXT,
	prompt_template_id TEXT,
	prompt_hash TEXT,
	prompt_size_chars INTEGER NOT NULL DEFAULT 0,
	is_shadow BOOLEAN NOT NULL DEFAULT FALSE,
	shadow_parent_trace_id TEXT,
	gate_blocked BOOLEAN NOT NULL DEFAULT FALSE,
	fallback_type TEXT,
	fallback_reason TEXT,
	request_id TEXT,
	session_id TEXT,
	method TEXT,
	tool_args_hash TEXT,
	tool_criticality TEXT,
	policy_decision TEXT,
	policy_id TEXT,
	policy_version TEXT,
	grounding_risk DOUBLE PRECISION,
	self_consistency_risk DOUBLE PRECISION,
	numeric_instability_risk DOUBLE PRECISION,
	tool_mismatch_risk DOUBLE PRECISION,
	drift_risk DOUBLE PRECISION,
	verifier_risk DOUBLE PRECISION,
	composite_risk_score DOUBLE PRECISION,
	composite_risk_level TEXT,
	shadow_disagreement_score DOUBLE PRECISION,
	shadow_numeric_variance DOUBLE PRECISION,
	exec_token_id TEXT,
	exec_token_ttl_ms BIGINT,
	exec_token_hash TEXT,
	exec_token_verified BOOLEAN
)`

// Postgres persists one row per completed span into the mcp_traces table.
// UUID-typed columns receive text-form UUIDs.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the mcp_traces table if missing.
func (e *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, createTracesSQL); err != nil {
		return fmt.Errorf("postgres exporter: ensure schema: %w", err)
	}
	return nil
}

// Export implements Exporter.
func (e *Postgres) Export(ctx context.Context, span *trace.Context) error {
	_, err := e.db.ExecContext(ctx, insertTraceSQL,
		span.TraceID,
		span.SpanID,
		nullString(span.ParentSpanID),
		span.Service,
		nullString(span.Model),
		nullString(span.ToolName),
		span.StartTime,
		nullTime(span.EndTime),
		span.PromptTokens,
		span.CompletionTokens,
		span.Retries,
		span.FallbackUsed,
		nullFloat(span.Confidence),
		nullString(span.RiskTier),
		nullString(span.PromptTemplateID),
		nullString(span.PromptHash),
		span.PromptSizeChars,
		span.IsShadow,
		nullString(span.ShadowParentTraceID),
		span.GateBlocked,
		nullString(span.FallbackType),
		nullString(span.FallbackReason),
		nullString(span.RequestID),
		nullString(span.SessionID),
		nullString(span.Method),
		nullString(span.ToolArgsHash),
		nullString(span.ToolCriticality),
		nullString(span.PolicyDecision),
		nullString(span.PolicyID),
		nullString(span.PolicyVersion),
		nullFloat(span.GroundingRisk),
		nullFloat(span.SelfConsistencyRisk),
		nullFloat(span.NumericInstabilityRisk),
		nullFloat(span.ToolMismatchRisk),
		nullFloat(span.DriftRisk),
		nullFloat(span.VerifierRisk),
		nullFloat(span.CompositeRiskScore),
		nullString(span.CompositeRiskLevel),
		nullFloat(span.ShadowDisagreementScore),
		nullFloat(span.ShadowNumericVariance),
		nullString(span.ExecTokenID),
		nullInt(span.ExecTokenTTLMS),
		nullString(span.ExecTokenHash),
		nullBool(span.ExecTokenVerified),
	)
	if err != nil {
		return fmt.Errorf("postgres exporter: insert span: %w", err)
	}
	return nil
}

// Close implements Exporter.
func (e *Postgres) Close(ctx context.Context) error {
	return e.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
