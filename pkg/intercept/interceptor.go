// Package intercept drives a tool call through the full control plane: risk
// vector computation, policy evaluation, token gating, fallback routing,
// trace finalization and shadow scheduling.
package intercept

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
	"github.com/Mindburn-Labs/vigil/pkg/exporters"
	"github.com/Mindburn-Labs/vigil/pkg/fallback"
	"github.com/Mindburn-Labs/vigil/pkg/policy"
	"github.com/Mindburn-Labs/vigil/pkg/registry"
	"github.com/Mindburn-Labs/vigil/pkg/risk"
	"github.com/Mindburn-Labs/vigil/pkg/shadow"
	"github.com/Mindburn-Labs/vigil/pkg/token"
	"github.com/Mindburn-Labs/vigil/pkg/trace"
)

// Self-consistency evaluation modes.
const (
	SelfConsistencyInline = "inline"
	SelfConsistencyShadow = "shadow"
	SelfConsistencyOff    = "off"
)

// Config holds the interceptor's runtime knobs.
type Config struct {
	// ShadowForHighRisk schedules a shadow comparison after any call whose
	// composite level is high.
	ShadowForHighRisk bool

	// SelfConsistencyMode controls where the secondary answer is used:
	// inline feeds it into the risk vector, shadow defers it to the shadow
	// lane, off ignores it.
	SelfConsistencyMode string

	Signals risk.Enabled
	Weights map[string]float64
}

// DefaultConfig enables every signal with inline self-consistency.
func DefaultConfig() Config {
	return Config{
		ShadowForHighRisk:   true,
		SelfConsistencyMode: SelfConsistencyInline,
		Signals:             risk.AllEnabled(),
	}
}

// ToolFunc is the side-effecting tool implementation being gated.
type ToolFunc func(ctx context.Context, toolArgs map[string]any) (any, error)

// Call bundles everything known about one prospective tool invocation.
type Call struct {
	ToolName string
	ToolArgs map[string]any
	ToolFn   ToolFunc

	Prompt            string
	Model             string
	ModelAnswer       string
	SecondaryAnswer   string
	RetrievedContext  string
	ToolResultSummary string

	PromptTemplateID   string
	RequestID          string
	SessionID          string
	BaselinePromptHash string
}

// Interceptor is the per-service control plane entry point.
type Interceptor struct {
	tracer   *trace.Tracer
	registry *registry.Registry
	engine   *policy.Engine
	issuer   *token.Issuer
	verifier *token.Verifier
	router   *fallback.Router
	exporter exporters.Exporter
	metrics  *Metrics
	cfg      Config
	log      *slog.Logger
}

// Option customizes an Interceptor.
type Option func(*Interceptor)

// WithRegistry replaces the default tool registry.
func WithRegistry(r *registry.Registry) Option {
	return func(i *Interceptor) { i.registry = r }
}

// WithEngine replaces the default policy engine.
func WithEngine(e *policy.Engine) Option {
	return func(i *Interceptor) { i.engine = e }
}

// WithTokens sets the execution-token issuer and verifier pair.
func WithTokens(issuer *token.Issuer, verifier *token.Verifier) Option {
	return func(i *Interceptor) {
		i.issuer = issuer
		i.verifier = verifier
	}
}

// WithFallbackRouter sets the safe-tool router for blocked calls.
func WithFallbackRouter(r *fallback.Router) Option {
	return func(i *Interceptor) { i.router = r }
}

// WithExporter sets the span exporter.
func WithExporter(e exporters.Exporter) Option {
	return func(i *Interceptor) { i.exporter = e }
}

// WithConfig overrides the runtime knobs.
func WithConfig(cfg Config) Option {
	return func(i *Interceptor) { i.cfg = cfg }
}

// New builds an interceptor for the named service.
func New(service string, opts ...Option) (*Interceptor, error) {
	engine, err := policy.NewEngine(policy.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("intercept: default policy engine: %w", err)
	}
	i := &Interceptor{
		tracer:   trace.NewTracer(service),
		registry: registry.Default,
		engine:   engine,
		issuer:   token.NewIssuer(""),
		verifier: token.NewVerifier(""),
		router:   fallback.NewRouter(),
		exporter: exporters.Noop{},
		metrics:  NewMetrics(),
		cfg:      DefaultConfig(),
		log:      slog.Default().With("component", "interceptor"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Metrics exposes the interceptor's counters.
func (i *Interceptor) Metrics() *Metrics { return i.metrics }

// InterceptToolCall runs the state machine for one tool call. Policy and
// token failures never surface as errors; they produce structured blocked or
// review responses. Only a tool execution error is returned, after the span
// is finalized and exported.
func (i *Interceptor) InterceptToolCall(ctx context.Context, call Call) (map[string]any, error) {
	span := i.tracer.StartSpan(call.Model, call.ToolName, nil)
	span.Method = "tools/call"
	span.PromptTemplateID = call.PromptTemplateID
	span.RequestID = call.RequestID
	span.SessionID = call.SessionID
	span.PromptSizeChars = len(call.Prompt)
	span.PromptTokens = estimateTokens(call.Prompt)
	span.CompletionTokens = estimateTokens(call.ModelAnswer)

	i.metrics.record(func(m *Metrics) { m.totalCalls++ })

	argsHash, err := canonicalize.ArgsHash(call.ToolArgs)
	if err != nil {
		return nil, fmt.Errorf("intercept: hash args: %w", err)
	}
	span.ToolArgsHash = argsHash

	vector := i.computeRisk(call)
	i.applyRisk(span, vector)

	profile := i.registry.Get(call.ToolName)
	span.ToolCriticality = string(profile.Criticality)
	span.RiskTier = profile.RiskTier

	result := i.engine.Evaluate(profile, vector.CompositeScore, profile.RiskTier, map[string]any{
		"request_id": call.RequestID,
		"session_id": call.SessionID,
	})
	span.PolicyDecision = string(result.Decision)
	span.PolicyID = result.PolicyID
	span.PolicyVersion = result.PolicyVersion

	var response map[string]any
	var toolErr error

	switch result.Decision {
	case policy.DecisionBlock:
		response = i.blockPath(ctx, span, call, result.Reason)
	case policy.DecisionReview:
		response = i.reviewPath(span, call, result.Reason)
	default:
		response, toolErr = i.allowPath(ctx, span, call, result, argsHash, vector.CompositeScore)
	}

	i.finalize(ctx, span, call, vector)
	return response, toolErr
}

func (i *Interceptor) computeRisk(call Call) risk.Vector {
	in := risk.Input{
		Prompt:             call.Prompt,
		Answer:             call.ModelAnswer,
		RetrievedContext:   call.RetrievedContext,
		ToolResultSummary:  call.ToolResultSummary,
		PreviousPromptHash: call.BaselinePromptHash,
	}
	if i.cfg.SelfConsistencyMode == SelfConsistencyInline {
		in.SecondaryAnswer = call.SecondaryAnswer
	}
	return risk.ComputeWith(in, i.cfg.Signals, i.cfg.Weights)
}

func (i *Interceptor) applyRisk(span *trace.Context, vector risk.Vector) {
	span.PromptHash = vector.PromptHash
	span.GroundingRisk = vector.Grounding
	span.SelfConsistencyRisk = vector.SelfConsistency
	span.NumericInstabilityRisk = vector.NumericInstability
	span.ToolMismatchRisk = ptr(vector.ToolMismatch)
	span.DriftRisk = ptr(vector.Drift)
	span.VerifierRisk = ptr(vector.Verifier)
	span.CompositeRiskScore = ptr(vector.CompositeScore)
	span.CompositeRiskLevel = vector.CompositeLevel

	i.metrics.record(func(m *Metrics) {
		if vector.CompositeLevel == risk.LevelHigh {
			m.highRisk++
		}
		if vector.Drift >= 1.0 {
			m.driftDetections++
		}
		if vector.Grounding != nil && *vector.Grounding > 0.75 {
			m.lowGrounding++
		}
	})
}

func (i *Interceptor) blockPath(ctx context.Context, span *trace.Context, call Call, reason string) map[string]any {
	span.GateBlocked = true
	span.FallbackUsed = true
	span.FallbackReason = reason

	routed, source := i.router.Route(ctx, call.ToolName, call.ToolArgs, reason)
	span.FallbackType = source

	i.metrics.record(func(m *Metrics) {
		m.blocked++
		m.fallbacks++
	})

	if m, ok := routed.(map[string]any); ok {
		return m
	}
	return fallback.BlockResponse(call.ToolName, reason)
}

func (i *Interceptor) reviewPath(span *trace.Context, call Call, reason string) map[string]any {
	span.GateBlocked = true
	span.FallbackType = fallback.SourceTemplate
	span.FallbackReason = reason
	i.metrics.record(func(m *Metrics) { m.reviewed++ })
	return fallback.ReviewResponse(call.ToolName, reason)
}

func (i *Interceptor) allowPath(ctx context.Context, span *trace.Context, call Call, result policy.Result, argsHash string, score float64) (map[string]any, error) {
	if result.RequireToken {
		issued, err := i.issuer.Issue(span.TraceID, call.ToolName, argsHash, string(result.Decision), score)
		if err != nil {
			i.log.Error("token issuance failed", "tool", call.ToolName, "error", err)
			i.metrics.record(func(m *Metrics) { m.tokenFailures++ })
			return i.blockPath(ctx, span, call, "token_issuance_failed"), nil
		}
		span.ExecTokenID = issued.TokenID
		span.ExecTokenHash = issued.TokenHash
		span.ExecTokenTTLMS = ptr64(issued.TTLMillis)

		verification := i.verifier.Verify(issued.Token, call.ToolName, argsHash)
		verified := verification.Valid
		span.ExecTokenVerified = &verified
		if !verification.Valid {
			i.metrics.record(func(m *Metrics) { m.tokenFailures++ })
			return i.blockPath(ctx, span, call, verification.Reason), nil
		}
	}

	toolResult, err := call.ToolFn(ctx, call.ToolArgs)
	if err != nil {
		i.metrics.record(func(m *Metrics) { m.toolErrors++ })
		return nil, err
	}

	i.metrics.record(func(m *Metrics) { m.allowed++ })
	if m, ok := toolResult.(map[string]any); ok {
		if _, has := m["status"]; has {
			return m, nil
		}
	}
	return map[string]any{"status": "executed", "tool_result": toolResult}, nil
}

// finalize ends the span, exports it best-effort and schedules the shadow
// lane for high-composite calls.
func (i *Interceptor) finalize(ctx context.Context, span *trace.Context, call Call, vector risk.Vector) {
	i.tracer.EndSpan(span)

	if err := i.exporter.Export(ctx, span); err != nil {
		i.metrics.record(func(m *Metrics) { m.exportFailures++ })
		i.log.Warn("span export failed", "trace_id", span.TraceID, "error", err)
	}

	if i.cfg.ShadowForHighRisk && vector.CompositeLevel == risk.LevelHigh {
		i.metrics.record(func(m *Metrics) { m.shadowScheduled++ })
		shadow.Schedule(span, call.ModelAnswer, call.SecondaryAnswer, i.exporter)
	}
}

// estimateTokens is the rough chars/4 heuristic used for span accounting.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func ptr(v float64) *float64 { return &v }

func ptr64(v int64) *int64 { return &v }
