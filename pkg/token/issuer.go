package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/canonicalize"
)

// Issuer signs execution tokens for internal tool authorization.
type Issuer struct {
	secret    []byte
	ttlMillis int64
	now       func() time.Time
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithTTLMillis overrides the token lifetime.
func WithTTLMillis(ttl int64) IssuerOption {
	return func(i *Issuer) { i.ttlMillis = ttl }
}

// WithIssuerClock injects a clock for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer builds an issuer. An empty secret falls back to EnvSecret and
// then the insecure developer default.
func NewIssuer(secret string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		secret:    resolveSecret(secret),
		ttlMillis: DefaultTTLMillis,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTLMillis reports the configured token lifetime.
func (i *Issuer) TTLMillis() int64 { return i.ttlMillis }

// Issue signs a token binding decision and risk score to (toolName,
// toolArgsHash) for the trace. Timestamps are millisecond epoch.
func (i *Issuer) Issue(traceID, toolName, toolArgsHash, decision string, compositeRiskScore float64) (IssuedToken, error) {
	issuedAt := i.now().UTC().UnixMilli()
	payload := Payload{
		TokenID:            uuid.NewString(),
		TraceID:            traceID,
		ToolName:           toolName,
		ToolArgsHash:       toolArgsHash,
		Decision:           decision,
		CompositeRiskScore: compositeRiskScore,
		IssuedAt:           issuedAt,
		ExpiresAt:          issuedAt + i.ttlMillis,
		Nonce:              uuid.NewString(),
	}

	payloadRaw, err := canonicalize.CanonicalJSON(payload)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("token: payload encode: %w", err)
	}

	sig := sign(i.secret, []byte(payloadRaw))
	tok := encodeToken([]byte(payloadRaw), sig)
	tokenHash := sha256.Sum256([]byte(tok))

	return IssuedToken{
		Token:     tok,
		TokenID:   payload.TokenID,
		TokenHash: hex.EncodeToString(tokenHash[:]),
		TTLMillis: i.ttlMillis,
		Payload:   payload,
	}, nil
}
