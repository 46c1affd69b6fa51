// Package mcp exposes the interception control plane over HTTP: a capability
// manifest, a gated execute endpoint and the propose/commit pair for
// irreversible tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/vigil/pkg/intercept"
	"github.com/Mindburn-Labs/vigil/pkg/observability"
	"github.com/Mindburn-Labs/vigil/pkg/proposal"
	"github.com/Mindburn-Labs/vigil/pkg/registry"
)

// ToolDef bundles everything the gateway needs to serve one tool: its risk
// profile, an optional JSON Schema for argument validation and the handler
// that performs the side effect.
type ToolDef struct {
	Name        string
	Description string
	InputSchema string // JSON Schema document; empty disables validation
	Profile     registry.ToolProfile
	Handler     intercept.ToolFunc
}

// GatewayConfig holds the gateway's serving knobs.
type GatewayConfig struct {
	ServerName    string
	Version       string
	RatePerSecond float64
	Burst         int
}

// DefaultGatewayConfig returns development defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		ServerName:    "vigil-gateway",
		Version:       "2.0.0",
		RatePerSecond: 50,
		Burst:         100,
	}
}

type toolEntry struct {
	def     ToolDef
	schema  *jsonschema.Schema
	limiter *rate.Limiter
}

// Gateway routes MCP requests through the interceptor and the
// propose/commit verifier.
type Gateway struct {
	cfg         GatewayConfig
	registry    *registry.Registry
	interceptor *intercept.Interceptor
	proposer    *proposal.Proposer
	verifier    *proposal.CommitVerifier

	mu    sync.RWMutex
	tools map[string]*toolEntry

	obs *observability.Provider
	log *slog.Logger
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithObservability wires the OpenTelemetry provider; every gated request
// then records through its RED instruments.
func WithObservability(p *observability.Provider) GatewayOption {
	return func(g *Gateway) { g.obs = p }
}

// NewGateway builds a gateway over an already wired control plane. The
// registry must be the same one the interceptor evaluates profiles from.
func NewGateway(cfg GatewayConfig, reg *registry.Registry, ic *intercept.Interceptor, prop *proposal.Proposer, ver *proposal.CommitVerifier, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:         cfg,
		registry:    reg,
		interceptor: ic,
		proposer:    prop,
		verifier:    ver,
		tools:       make(map[string]*toolEntry),
		log:         slog.Default().With("component", "mcp-gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// track opens a RED span around one gated request when observability is
// wired; the returned function must be called exactly once.
func (g *Gateway) track(ctx context.Context, name, toolName string) (context.Context, func(error)) {
	if g.obs == nil {
		return ctx, func(error) {}
	}
	return g.obs.TrackCall(ctx, name, attribute.String("mcp.tool", toolName))
}

func (g *Gateway) recordBlock(ctx context.Context, toolName string) {
	if g.obs != nil {
		g.obs.RecordBlock(ctx, attribute.String("mcp.tool", toolName))
	}
}

// RegisterTool registers the tool's risk profile and compiles its input
// schema. Re-registering a name overwrites the earlier definition.
func (g *Gateway) RegisterTool(def ToolDef) error {
	if def.Name == "" {
		return fmt.Errorf("mcp: tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("mcp: tool %s has no handler", def.Name)
	}

	entry := &toolEntry{
		def:     def,
		limiter: rate.NewLimiter(rate.Limit(g.cfg.RatePerSecond), g.cfg.Burst),
	}
	if def.InputSchema != "" {
		compiler := jsonschema.NewCompiler()
		url := def.Name + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(def.InputSchema)); err != nil {
			return fmt.Errorf("mcp: add schema for %s: %w", def.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("mcp: compile schema for %s: %w", def.Name, err)
		}
		entry.schema = schema
	}

	profile := def.Profile
	profile.Name = def.Name
	g.registry.Register(profile)

	g.mu.Lock()
	g.tools[def.Name] = entry
	g.mu.Unlock()
	return nil
}

func (g *Gateway) tool(name string) (*toolEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	entry, ok := g.tools[name]
	return entry, ok
}

// RegisterRoutes wires the gateway endpoints onto the mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp/v1/capabilities", g.handleCapabilities)
	mux.HandleFunc("/mcp/v1/execute", g.handleExecute)
	mux.HandleFunc("/mcp/v1/propose", g.handlePropose)
	mux.HandleFunc("/mcp/v1/commit", g.handleCommit)
	mux.HandleFunc("/mcp/v1/metrics", g.handleMetrics)
}

// CapabilityManifest describes the server and its tools to MCP clients.
type CapabilityManifest struct {
	ServerName string           `json:"server_name"`
	Version    string           `json:"version"`
	Tools      []ToolCapability `json:"tools"`
}

// ToolCapability is one manifest entry.
type ToolCapability struct {
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Criticality      string          `json:"criticality"`
	BlastRadius      string          `json:"blast_radius"`
	Irreversible     bool            `json:"irreversible"`
	Regulatory       bool            `json:"regulatory"`
	ProposalRequired bool            `json:"proposal_required"`
	InputSchema      json.RawMessage `json:"input_schema,omitempty"`
}

func (g *Gateway) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	g.mu.RLock()
	tools := make([]ToolCapability, 0, len(g.tools))
	for name, entry := range g.tools {
		profile := g.registry.Get(name)
		capability := ToolCapability{
			Name:             name,
			Description:      entry.def.Description,
			Criticality:      string(profile.Criticality),
			BlastRadius:      profile.BlastRadius,
			Irreversible:     profile.Irreversible,
			Regulatory:       profile.Regulatory,
			ProposalRequired: proposalRequired(profile),
		}
		if entry.def.InputSchema != "" {
			capability.InputSchema = json.RawMessage(entry.def.InputSchema)
		}
		tools = append(tools, capability)
	}
	g.mu.RUnlock()

	writeJSON(w, http.StatusOK, CapabilityManifest{
		ServerName: g.cfg.ServerName,
		Version:    g.cfg.Version,
		Tools:      tools,
	})
}

// ExecuteRequest is the wire form of a gated tool call.
type ExecuteRequest struct {
	ToolName          string         `json:"tool_name"`
	ToolArgs          map[string]any `json:"tool_args"`
	Prompt            string         `json:"prompt"`
	Model             string         `json:"model,omitempty"`
	ModelAnswer       string         `json:"model_answer,omitempty"`
	SecondaryAnswer   string         `json:"secondary_answer,omitempty"`
	RetrievedContext  string         `json:"retrieved_context,omitempty"`
	ToolResultSummary string         `json:"tool_result_summary,omitempty"`
	RequestID         string         `json:"request_id,omitempty"`
	SessionID         string         `json:"session_id,omitempty"`
}

func (g *Gateway) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	entry, ok := g.decodeToolRequest(w, r, &req, func() (string, map[string]any) {
		return req.ToolName, req.ToolArgs
	})
	if !ok {
		return
	}

	profile := g.registry.Get(req.ToolName)
	if proposalRequired(profile) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"status":            "proposal_required",
			"reason":            "irreversible_tool_requires_proposal",
			"tool_name":         req.ToolName,
			"propose_endpoint":  "/mcp/v1/propose",
			"commit_endpoint":   "/mcp/v1/commit",
			"tool_criticality":  string(profile.Criticality),
			"tool_irreversible": profile.Irreversible,
		})
		return
	}

	ctx, done := g.track(r.Context(), "mcp.execute", req.ToolName)
	result, err := g.interceptor.InterceptToolCall(ctx, intercept.Call{
		ToolName:          req.ToolName,
		ToolArgs:          req.ToolArgs,
		ToolFn:            entry.def.Handler,
		Prompt:            req.Prompt,
		Model:             req.Model,
		ModelAnswer:       req.ModelAnswer,
		SecondaryAnswer:   req.SecondaryAnswer,
		RetrievedContext:  req.RetrievedContext,
		ToolResultSummary: req.ToolResultSummary,
		RequestID:         req.RequestID,
		SessionID:         req.SessionID,
	})
	if err != nil {
		done(err)
		g.log.Error("tool execution failed", "tool", req.ToolName, "error", err)
		writeError(w, http.StatusBadGateway, "tool_execution_failed")
		return
	}
	if status, _ := result["status"].(string); status == "blocked" || status == "review_required" {
		g.recordBlock(ctx, req.ToolName)
	}
	done(nil)
	writeJSON(w, http.StatusOK, result)
}

// ProposeRequest is the wire form of a proposal-phase request.
type ProposeRequest struct {
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
	Prompt   string         `json:"prompt"`
}

func (g *Gateway) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req ProposeRequest
	if _, ok := g.decodeToolRequest(w, r, &req, func() (string, map[string]any) {
		return req.ToolName, req.ToolArgs
	}); !ok {
		return
	}

	ctx, done := g.track(r.Context(), "mcp.propose", req.ToolName)
	result, err := g.proposer.Propose(ctx, req.ToolName, req.ToolArgs, req.Prompt)
	if err != nil {
		done(err)
		g.log.Error("proposal failed", "tool", req.ToolName, "error", err)
		writeError(w, http.StatusInternalServerError, "proposal_failed")
		return
	}
	if result.Status == proposal.StatusBlocked {
		g.recordBlock(ctx, req.ToolName)
	}
	done(nil)
	writeJSON(w, http.StatusOK, result)
}

// CommitRequest is the wire form of a commit attempt.
type CommitRequest struct {
	ProposalID  string         `json:"proposal_id"`
	CommitToken string         `json:"commit_token"`
	ToolName    string         `json:"tool_name"`
	ToolArgs    map[string]any `json:"tool_args"`
}

func (g *Gateway) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	entry, ok := g.decodeToolRequest(w, r, &req, func() (string, map[string]any) {
		return req.ToolName, req.ToolArgs
	})
	if !ok {
		return
	}

	verification, err := g.verifier.VerifyCommit(r.Context(), req.ProposalID, req.CommitToken, req.ToolName, req.ToolArgs)
	if err != nil {
		g.log.Error("commit verification failed", "proposal_id", req.ProposalID, "error", err)
		writeError(w, http.StatusInternalServerError, "commit_verification_failed")
		return
	}

	tokenID := ""
	if verification.Payload != nil {
		tokenID = verification.Payload.TokenID
	}

	if !verification.OK {
		g.recordBlock(r.Context(), req.ToolName)
		response := map[string]any{
			"status":      "blocked",
			"reason":      verification.Reason,
			"proposal_id": req.ProposalID,
		}
		if commitID, recErr := g.verifier.RecordCommit(r.Context(), req.ProposalID, tokenID, proposal.CommitBlocked, verification.Reason); recErr != nil {
			g.log.Error("commit audit write failed", "proposal_id", req.ProposalID, "error", recErr)
		} else {
			response["commit_id"] = commitID
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	// The side effect runs first; a committed row is only written once it
	// succeeded, so committed rows always mean executed side effects.
	ctx, done := g.track(r.Context(), "mcp.commit", req.ToolName)
	toolResult, err := entry.def.Handler(ctx, req.ToolArgs)
	if err != nil {
		done(err)
		g.log.Error("committed tool execution failed", "tool", req.ToolName, "proposal_id", req.ProposalID, "error", err)
		if _, recErr := g.verifier.RecordCommit(ctx, req.ProposalID, tokenID, proposal.CommitBlocked, "tool_execution_failed"); recErr != nil {
			g.log.Error("commit audit write failed", "proposal_id", req.ProposalID, "error", recErr)
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":      "error",
			"error":       "tool_execution_failed",
			"proposal_id": req.ProposalID,
		})
		return
	}

	commitID, err := g.verifier.RecordCommit(ctx, req.ProposalID, tokenID, proposal.CommitCommitted, verification.Reason)
	if err != nil {
		done(err)
		g.log.Error("commit audit write failed", "proposal_id", req.ProposalID, "error", err)
		writeError(w, http.StatusInternalServerError, "commit_record_failed")
		return
	}
	done(nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "committed",
		"proposal_id": req.ProposalID,
		"commit_id":   commitID,
		"tool_result": toolResult,
	})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	snap := g.interceptor.Metrics().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap,
		"alerts":   g.interceptor.Metrics().ActiveAlerts(intercept.DefaultAlertThresholds()),
	})
}

// decodeToolRequest decodes the POST body, resolves the tool, applies its
// rate limit and validates the arguments. On failure it has already written
// the error response.
func (g *Gateway) decodeToolRequest(w http.ResponseWriter, r *http.Request, dst any, extract func() (string, map[string]any)) (*toolEntry, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return nil, false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return nil, false
	}

	toolName, toolArgs := extract()
	entry, ok := g.tool(toolName)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_tool")
		return nil, false
	}
	if !entry.limiter.Allow() {
		g.log.Warn("rate limited", "tool", toolName)
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return nil, false
	}
	if entry.schema != nil {
		if err := entry.schema.Validate(anyMap(toolArgs)); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid_arguments",
				"detail": err.Error(),
			})
			return nil, false
		}
	}
	return entry, true
}

// proposalRequired reports whether direct execution is refused for the tool.
func proposalRequired(profile registry.ToolProfile) bool {
	return profile.Irreversible && profile.Criticality == registry.CriticalityHigh
}

// anyMap keeps nil argument maps valid against object schemas that require
// no properties.
func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}
