package token

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Verification failure reasons, surfaced verbatim in audit fields.
const (
	ReasonDecodeFailed     = "token_decode_failed"
	ReasonInvalidSignature = "invalid_signature"
	ReasonInvalidPayload   = "invalid_payload_json"
	ReasonExpired          = "token_expired"
	ReasonToolNameMismatch = "tool_name_mismatch"
	ReasonArgsHashMismatch = "tool_args_hash_mismatch"
	ReasonReplayDetected   = "token_replay_detected"
	ReasonOK               = "ok"
)

// Verifier checks execution tokens and binds them to the invocation args.
type Verifier struct {
	secret []byte
	replay ReplayStore
	now    func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithReplayStore sets the replay store. Nil disables replay protection.
func WithReplayStore(store ReplayStore) VerifierOption {
	return func(v *Verifier) { v.replay = store }
}

// WithVerifierClock injects a clock for tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier builds a verifier with in-memory replay protection unless
// overridden.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret: resolveSecret(secret),
		replay: NewMemoryReplayStore(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the full check sequence. Every failure mode returns its own
// reason; a token verifies successfully at most once when replay protection
// is enabled.
func (v *Verifier) Verify(tok, toolName, toolArgsHash string) VerificationResult {
	payloadB64, sigB64, found := strings.Cut(tok, ".")
	if !found {
		return VerificationResult{Valid: false, Reason: ReasonDecodeFailed}
	}
	payloadRaw, err := base64.URLEncoding.DecodeString(payloadB64)
	if err != nil {
		return VerificationResult{Valid: false, Reason: ReasonDecodeFailed}
	}
	sig, err := base64.URLEncoding.DecodeString(sigB64)
	if err != nil {
		return VerificationResult{Valid: false, Reason: ReasonDecodeFailed}
	}

	expected := sign(v.secret, payloadRaw)
	if !hmac.Equal(sig, expected) {
		return VerificationResult{Valid: false, Reason: ReasonInvalidSignature}
	}

	var payload Payload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return VerificationResult{Valid: false, Reason: ReasonInvalidPayload}
	}

	nowMillis := v.now().UTC().UnixMilli()
	if payload.ExpiresAt <= nowMillis {
		return VerificationResult{Valid: false, Reason: ReasonExpired, Payload: &payload}
	}

	if payload.ToolName != toolName {
		return VerificationResult{Valid: false, Reason: ReasonToolNameMismatch, Payload: &payload}
	}
	if payload.ToolArgsHash != toolArgsHash {
		return VerificationResult{Valid: false, Reason: ReasonArgsHashMismatch, Payload: &payload}
	}

	if v.replay != nil && payload.TokenID != "" {
		if v.replay.Seen(payload.TokenID, payload.ExpiresAt) {
			return VerificationResult{Valid: false, Reason: ReasonReplayDetected, Payload: &payload}
		}
	}

	return VerificationResult{Valid: true, Reason: ReasonOK, Payload: &payload}
}
