// Package token issues and verifies short-lived HMAC-signed capability
// tokens that bind an ALLOW decision to a specific (tool_name, args_hash)
// pair, with single-use replay protection.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
)

// EnvSecret is the environment variable holding the execution-token secret.
const EnvSecret = "VIGIL_TOKEN_SECRET"

// DevSecret is the well-known developer fallback. It must be treated as
// insecure; production deployments set EnvSecret.
const DevSecret = "dev-secret"

// DefaultTTLMillis is the default execution-token lifetime.
const DefaultTTLMillis int64 = 30_000

// Payload is the signed inner content of an execution token.
type Payload struct {
	TokenID            string  `json:"token_id"`
	TraceID            string  `json:"trace_id"`
	ToolName           string  `json:"tool_name"`
	ToolArgsHash       string  `json:"tool_args_hash"`
	Decision           string  `json:"decision"`
	CompositeRiskScore float64 `json:"composite_risk_score"`
	IssuedAt           int64   `json:"issued_at"`
	ExpiresAt          int64   `json:"expires_at"`
	Nonce              string  `json:"nonce"`
}

// IssuedToken is the opaque artifact handed to the execution path.
type IssuedToken struct {
	Token     string  `json:"token"`
	TokenID   string  `json:"token_id"`
	TokenHash string  `json:"token_hash"`
	TTLMillis int64   `json:"ttl_ms"`
	Payload   Payload `json:"payload"`
}

// VerificationResult reports a verification outcome. Reason is an audit
// string surfaced verbatim.
type VerificationResult struct {
	Valid   bool     `json:"valid"`
	Reason  string   `json:"reason"`
	Payload *Payload `json:"payload,omitempty"`
}

func resolveSecret(explicit string) []byte {
	if explicit != "" {
		return []byte(explicit)
	}
	if env := os.Getenv(EnvSecret); env != "" {
		return []byte(env)
	}
	return []byte(DevSecret)
}

func sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeToken(payloadRaw, sig []byte) string {
	return base64.URLEncoding.EncodeToString(payloadRaw) + "." + base64.URLEncoding.EncodeToString(sig)
}
