// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and text normalization for deterministic hashing of prompts
// and tool argument bundles.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gowebpki/jcs"
)

var wsRE = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses whitespace runs to single spaces.
// Prompts differing only in case or insignificant whitespace normalize to the
// same string.
func Normalize(text string) string {
	return wsRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// SHA256Hex returns the lowercase hex SHA-256 digest of value.
func SHA256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON returns the RFC 8785 canonical JSON form of v:
// keys sorted lexicographically, compact separators, non-ASCII preserved.
func CanonicalJSON(v any) (string, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return "", fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return string(canonical), nil
}

// ArgsHash returns the stable SHA-256 hash for a JSON-serializable argument
// bundle. Permuting map keys never changes the hash.
func ArgsHash(toolArgs any) (string, error) {
	canonical, err := CanonicalJSON(toolArgs)
	if err != nil {
		return "", err
	}
	return SHA256Hex(Normalize(canonical)), nil
}

// MustArgsHash is ArgsHash for arguments known to be JSON-serializable,
// such as decoded request maps. It panics on marshal failure.
func MustArgsHash(toolArgs any) string {
	h, err := ArgsHash(toolArgs)
	if err != nil {
		panic(err)
	}
	return h
}

// PromptHash returns the SHA-256 hash of the normalized prompt.
func PromptHash(prompt string) string {
	return SHA256Hex(Normalize(prompt))
}
