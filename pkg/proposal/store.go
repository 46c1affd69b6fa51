// Package proposal implements the two-phase propose/commit protocol for
// irreversible tools: proposal-phase scoring, commit token issuance, commit
// verification with nonce single-use enforcement, and the backing stores.
package proposal

import (
	"context"
	"time"
)

// Proposal decisions.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Commit decisions.
const (
	CommitCommitted = "committed"
	CommitBlocked   = "blocked"
)

// Proposal is the immutable record saved during the proposal phase.
type Proposal struct {
	ProposalID     string
	ToolName       string
	ArgsJSON       string
	PromptHash     string
	CompositeScore float64
	Decision       string
	CreatedAt      time.Time
}

// Commit records the outcome of a commit attempt, successful or not.
type Commit struct {
	CommitID           string
	ProposalID         string
	TokenID            string
	Decision           string
	VerificationReason string
	CreatedAt          time.Time
}

// Store is the persistence backend for proposals, commits, per-tool prompt
// baselines and nonce replay checks. Each call must be atomic.
type Store interface {
	// BaselinePromptHash returns the baseline prompt hash for a tool, or
	// empty string if none has been set.
	BaselinePromptHash(ctx context.Context, toolName string) (string, error)

	// SetBaselinePromptHash stores the baseline prompt hash for a tool,
	// replacing any previous value.
	SetBaselinePromptHash(ctx context.Context, toolName, promptHash string) error

	SaveProposal(ctx context.Context, p Proposal) error

	// GetProposal returns nil when no proposal exists for the id.
	GetProposal(ctx context.Context, proposalID string) (*Proposal, error)

	SaveCommit(ctx context.Context, c Commit) error

	// NonceSeen reports whether the nonce was already recorded and active.
	// When unseen it records the nonce with its expiry and returns false.
	// The check-and-insert must be atomic.
	NonceSeen(ctx context.Context, nonce, tokenID string, expiresAt time.Time) (bool, error)
}
