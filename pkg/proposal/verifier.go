package proposal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

// Verification is the outcome of a commit verification.
type Verification struct {
	OK      bool           `json:"ok"`
	Reason  string         `json:"reason"`
	Payload *CommitPayload `json:"payload,omitempty"`
}

// CommitVerifier enforces the commit-phase rules: proposal binding, token
// validity, args binding and nonce single-use.
type CommitVerifier struct {
	store  Store
	tokens *CommitTokenManager
}

// NewCommitVerifier builds a verifier over the given store and token manager.
func NewCommitVerifier(store Store, tokens *CommitTokenManager) *CommitVerifier {
	return &CommitVerifier{store: store, tokens: tokens}
}

// VerifyCommit checks a commit attempt against its proposal and token. Only
// on OK may the caller execute the side effect. A mismatched tool name is
// reported as args_hash_mismatch, keeping the reason taxonomy stable for
// downstream audit consumers.
func (v *CommitVerifier) VerifyCommit(ctx context.Context, proposalID, commitToken, toolName string, toolArgs map[string]any) (Verification, error) {
	prop, err := v.store.GetProposal(ctx, proposalID)
	if err != nil {
		return Verification{}, fmt.Errorf("commit verifier: load proposal: %w", err)
	}
	if prop == nil || prop.Decision != DecisionAllow {
		return Verification{OK: false, Reason: ReasonUnknownProposal}, nil
	}

	check := v.tokens.Verify(commitToken)
	if !check.Valid {
		return Verification{OK: false, Reason: check.Reason, Payload: check.Payload}, nil
	}
	payload := check.Payload

	if payload.ProposalID != proposalID {
		return Verification{OK: false, Reason: ReasonUnknownProposal, Payload: payload}, nil
	}
	if payload.ToolName != toolName {
		return Verification{OK: false, Reason: ReasonArgsHashMismatch, Payload: payload}, nil
	}

	argsDigest, err := canonicalize.ArgsHash(toolArgs)
	if err != nil {
		return Verification{}, fmt.Errorf("commit verifier: hash args: %w", err)
	}
	if payload.ToolArgsHash != argsDigest {
		return Verification{OK: false, Reason: ReasonArgsHashMismatch, Payload: payload}, nil
	}

	expiresAt := time.Unix(payload.ExpiresAt, 0).UTC()
	seen, err := v.store.NonceSeen(ctx, payload.Nonce, payload.TokenID, expiresAt)
	if err != nil {
		return Verification{}, fmt.Errorf("commit verifier: nonce check: %w", err)
	}
	if seen {
		return Verification{OK: false, Reason: ReasonNonceReplay, Payload: payload}, nil
	}

	return Verification{OK: true, Reason: ReasonOK, Payload: payload}, nil
}

// RecordCommit writes a commit row for every attempt, successful or blocked,
// producing an auditable trail. Returns the new commit id.
func (v *CommitVerifier) RecordCommit(ctx context.Context, proposalID, tokenID, decision, verificationReason string) (string, error) {
	commitID := uuid.NewString()
	if err := v.store.SaveCommit(ctx, Commit{
		CommitID:           commitID,
		ProposalID:         proposalID,
		TokenID:            tokenID,
		Decision:           decision,
		VerificationReason: verificationReason,
		CreatedAt:          time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("commit verifier: save commit: %w", err)
	}
	return commitID, nil
}
