package proposal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

// EnvCommitSecret is the environment variable holding the commit-token secret.
const EnvCommitSecret = "VIGIL_COMMIT_SECRET"

// DevCommitSecret is the well-known developer fallback. Insecure; production
// deployments set EnvCommitSecret.
const DevCommitSecret = "dev-commit-secret"

// DefaultCommitTTLSeconds is the default commit-token lifetime.
const DefaultCommitTTLSeconds int64 = 60

// Commit-token verification reasons.
const (
	ReasonOK               = "ok"
	ReasonBadSignature     = "bad_signature"
	ReasonExpired          = "expired"
	ReasonUnknownProposal  = "unknown_proposal"
	ReasonArgsHashMismatch = "args_hash_mismatch"
	ReasonNonceReplay      = "nonce_replay"
)

// CommitPayload is the signed inner content of a commit token. Timestamps are
// second epoch, unlike execution tokens which use milliseconds.
type CommitPayload struct {
	TokenID        string  `json:"token_id"`
	ProposalID     string  `json:"proposal_id"`
	ToolName       string  `json:"tool_name"`
	ToolArgsHash   string  `json:"tool_args_hash"`
	IssuedAt       int64   `json:"issued_at"`
	ExpiresAt      int64   `json:"expires_at"`
	Nonce          string  `json:"nonce"`
	CompositeScore float64 `json:"composite_score"`
}

// IssuedCommitToken is the artifact returned by the proposal phase.
type IssuedCommitToken struct {
	Token   string        `json:"token"`
	TokenID string        `json:"token_id"`
	Payload CommitPayload `json:"payload"`
}

// CommitTokenResult reports a commit-token verification outcome.
type CommitTokenResult struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason"`
	Payload *CommitPayload `json:"payload,omitempty"`
}

// CommitTokenManager issues and verifies HMAC-SHA256 commit tokens binding a
// proposal to a specific (tool, args) pair.
type CommitTokenManager struct {
	secret     []byte
	ttlSeconds int64
	now        func() time.Time
}

// CommitTokenOption customizes a CommitTokenManager.
type CommitTokenOption func(*CommitTokenManager)

// WithCommitTTLSeconds overrides the token lifetime.
func WithCommitTTLSeconds(ttl int64) CommitTokenOption {
	return func(m *CommitTokenManager) { m.ttlSeconds = ttl }
}

// WithCommitClock injects a clock for tests.
func WithCommitClock(now func() time.Time) CommitTokenOption {
	return func(m *CommitTokenManager) { m.now = now }
}

// NewCommitTokenManager builds a manager. An empty secret falls back to
// EnvCommitSecret and then the insecure developer default.
func NewCommitTokenManager(secret string, opts ...CommitTokenOption) *CommitTokenManager {
	m := &CommitTokenManager{
		secret:     resolveCommitSecret(secret),
		ttlSeconds: DefaultCommitTTLSeconds,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTLSeconds reports the configured token lifetime.
func (m *CommitTokenManager) TTLSeconds() int64 { return m.ttlSeconds }

// Issue signs a commit token for an allowed proposal.
func (m *CommitTokenManager) Issue(proposalID, toolName, toolArgsHash string, compositeScore float64) (IssuedCommitToken, error) {
	issuedAt := m.now().UTC().Unix()
	payload := CommitPayload{
		TokenID:        uuid.NewString(),
		ProposalID:     proposalID,
		ToolName:       toolName,
		ToolArgsHash:   toolArgsHash,
		IssuedAt:       issuedAt,
		ExpiresAt:      issuedAt + m.ttlSeconds,
		Nonce:          uuid.NewString(),
		CompositeScore: compositeScore,
	}

	payloadRaw, err := canonicalize.CanonicalJSON(payload)
	if err != nil {
		return IssuedCommitToken{}, err
	}

	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payloadRaw))
	sig := mac.Sum(nil)

	tok := base64.URLEncoding.EncodeToString([]byte(payloadRaw)) + "." + base64.URLEncoding.EncodeToString(sig)
	return IssuedCommitToken{Token: tok, TokenID: payload.TokenID, Payload: payload}, nil
}

// Verify checks signature and expiry only. Proposal binding, args binding and
// nonce replay are enforced by CommitVerifier, which has the store.
func (m *CommitTokenManager) Verify(tok string) CommitTokenResult {
	payloadB64, sigB64, found := strings.Cut(tok, ".")
	if !found {
		return CommitTokenResult{Valid: false, Reason: ReasonBadSignature}
	}
	payloadRaw, err := base64.URLEncoding.DecodeString(payloadB64)
	if err != nil {
		return CommitTokenResult{Valid: false, Reason: ReasonBadSignature}
	}
	sig, err := base64.URLEncoding.DecodeString(sigB64)
	if err != nil {
		return CommitTokenResult{Valid: false, Reason: ReasonBadSignature}
	}

	mac := hmac.New(sha256.New, m.secret)
	mac.Write(payloadRaw)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return CommitTokenResult{Valid: false, Reason: ReasonBadSignature}
	}

	var payload CommitPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return CommitTokenResult{Valid: false, Reason: ReasonBadSignature}
	}

	if payload.ExpiresAt <= m.now().UTC().Unix() {
		return CommitTokenResult{Valid: false, Reason: ReasonExpired, Payload: &payload}
	}
	return CommitTokenResult{Valid: true, Reason: ReasonOK, Payload: &payload}
}

func resolveCommitSecret(explicit string) []byte {
	if explicit != "" {
		return []byte(explicit)
	}
	if env := os.Getenv(EnvCommitSecret); env != "" {
		return []byte(env)
	}
	return []byte(DevCommitSecret)
}
