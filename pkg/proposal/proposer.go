package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

// Proposal outcome statuses.
const (
	StatusAllowed = "allowed"
	StatusBlocked = "blocked"
)

// ReasonLowIntegrity is returned when proposal-phase scoring blocks the call.
const ReasonLowIntegrity = "low_integrity"

// ProposerConfig holds proposal-phase decisioning knobs.
type ProposerConfig struct {
	BlockThreshold float64
}

// DefaultProposerConfig returns the default block threshold.
func DefaultProposerConfig() ProposerConfig {
	return ProposerConfig{BlockThreshold: 0.45}
}

// Result is the outcome of a proposal. A blocked proposal carries a draft and
// no token; an allowed one carries the commit token.
type Result struct {
	Status         string              `json:"status"`
	Action         string              `json:"action,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	ProposalID     string              `json:"proposal_id"`
	ToolName       string              `json:"tool_name,omitempty"`
	CompositeScore float64             `json:"composite_score"`
	Signals        map[string]*float64 `json:"signals"`
	CommitToken    string              `json:"commit_token,omitempty"`
	TokenID        string              `json:"token_id,omitempty"`
	Draft          map[string]any      `json:"draft,omitempty"`
}

// Proposer runs the side-effect-free proposal phase: candidate generation,
// integrity scoring, proposal persistence and commit token issuance.
type Proposer struct {
	store    Store
	tokens   *CommitTokenManager
	cfg      ProposerConfig
	generate Generator
	log      *slog.Logger
}

// ProposerOption customizes a Proposer.
type ProposerOption func(*Proposer)

// WithGenerator replaces the candidate generator, typically with real model
// calls.
func WithGenerator(g Generator) ProposerOption {
	return func(p *Proposer) { p.generate = g }
}

// WithProposerConfig overrides decisioning knobs.
func WithProposerConfig(cfg ProposerConfig) ProposerOption {
	return func(p *Proposer) { p.cfg = cfg }
}

// NewProposer builds a proposer over the given store and token manager.
func NewProposer(store Store, tokens *CommitTokenManager, opts ...ProposerOption) *Proposer {
	p := &Proposer{
		store:    store,
		tokens:   tokens,
		cfg:      DefaultProposerConfig(),
		generate: GenerateCandidate,
		log:      slog.Default().With("component", "proposer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propose scores a prospective tool call without side effects. The baseline
// prompt hash for the tool is established on the first proposal; drift is
// measured against it afterwards.
func (p *Proposer) Propose(ctx context.Context, toolName string, args map[string]any, prompt string) (*Result, error) {
	argsJSON, err := canonicalize.CanonicalJSON(args)
	if err != nil {
		return nil, fmt.Errorf("proposer: encode args: %w", err)
	}
	argsDigest, err := canonicalize.ArgsHash(args)
	if err != nil {
		return nil, fmt.Errorf("proposer: hash args: %w", err)
	}

	baseline, err := p.store.BaselinePromptHash(ctx, toolName)
	if err != nil {
		return nil, fmt.Errorf("proposer: load baseline: %w", err)
	}
	pHash := canonicalize.PromptHash(prompt)
	if baseline == "" {
		if err := p.store.SetBaselinePromptHash(ctx, toolName, pHash); err != nil {
			return nil, fmt.Errorf("proposer: set baseline: %w", err)
		}
	}

	candidateA := p.generate(prompt, 0.0)
	candidateB := p.generate(prompt, 0.7)

	instability := OutputInstability(candidateA, candidateB)
	signals := map[string]*float64{
		SignalOutputInstability: &instability,
		SignalNumericVariance:   NumericVariance(candidateA, candidateB),
		SignalPromptDrift:       PromptDrift(prompt, baseline),
	}
	score := Score(signals, nil)

	proposalID := uuid.NewString()
	decision := DecisionAllow
	if score >= p.cfg.BlockThreshold {
		decision = DecisionBlock
	}
	if err := p.store.SaveProposal(ctx, Proposal{
		ProposalID:     proposalID,
		ToolName:       toolName,
		ArgsJSON:       argsJSON,
		PromptHash:     pHash,
		CompositeScore: score,
		Decision:       decision,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("proposer: save proposal: %w", err)
	}

	if decision == DecisionBlock {
		p.log.Warn("proposal blocked",
			"tool", toolName,
			"proposal_id", proposalID,
			"composite_score", score)
		return &Result{
			Status:         StatusBlocked,
			Action:         "create_draft",
			Reason:         ReasonLowIntegrity,
			ProposalID:     proposalID,
			CompositeScore: score,
			Signals:        signals,
			Draft: map[string]any{
				"tool": toolName,
				"args": args,
				"note": "Blocked in proposal phase. No side effects executed.",
			},
		}, nil
	}

	tok, err := p.tokens.Issue(proposalID, toolName, argsDigest, score)
	if err != nil {
		return nil, fmt.Errorf("proposer: issue commit token: %w", err)
	}
	return &Result{
		Status:         StatusAllowed,
		ProposalID:     proposalID,
		ToolName:       toolName,
		CompositeScore: score,
		Signals:        signals,
		CommitToken:    tok.Token,
		TokenID:        tok.TokenID,
	}, nil
}
