// Package sanitize turns free-form names such as model identifiers into
// tokens that are safe to embed in NATS subjects and metric labels.
//
// A token matches ^[a-z0-9_-]{1,64}$. Model names like "openai/gpt-4.1"
// contain separators that NATS treats as subject hierarchy or wildcards.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxTokenLength is the maximum length of a sanitized token.
	MaxTokenLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated tokens.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultToken is used when sanitization produces an empty result.
	DefaultToken = "default"
)

// Token sanitizes s for use as a single subject token.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces characters outside [a-z0-9_-] with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxTokenLength with hash suffix if too long
//   - Returns DefaultToken if result would be empty
//
// Examples:
//
//	"openai/gpt-4.1" -> "openai_gpt-4_1"
//	"Claude 3 Haiku" -> "claude_3_haiku"
//	"" or "*.>"      -> "default"
func Token(s string) string {
	if s == "" {
		return DefaultToken
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultToken
	}

	if len(sanitized) > MaxTokenLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// truncateWithHash truncates a string to fit within MaxTokenLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	truncated := s[:MaxTokenLength-HashSuffixLength]
	truncated = strings.TrimRight(truncated, "_")

	return truncated + hashSuffix
}

// Subject joins prefix with the sanitized form of each token.
//
// Example: Subject("modelrouter.decisions", "linucb", "openai/gpt-4o")
//
//	-> "modelrouter.decisions.linucb.openai_gpt-4o"
func Subject(prefix string, tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, t := range tokens {
		parts = append(parts, Token(t))
	}
	return strings.Join(parts, ".")
}
