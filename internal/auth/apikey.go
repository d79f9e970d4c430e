// Package auth holds the two credentials the server understands: operator
// API keys for the HTTP side surface and signed player tokens.
package auth

import (
	"crypto/subtle"
	"strings"
)

// APIKeyAuth checks operator API keys
type APIKeyAuth struct {
	validKeys map[string]struct{}
}

// NewAPIKeyAuth creates an API key checker. Blank keys are ignored.
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	validKeys := make(map[string]struct{})
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			validKeys[key] = struct{}{}
		}
	}

	return &APIKeyAuth{
		validKeys: validKeys,
	}
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.validKeys) > 0
}

// IsValidKey checks if a key is valid
func (a *APIKeyAuth) IsValidKey(key string) bool {
	if key == "" {
		return false
	}
	for valid := range a.validKeys {
		if subtle.ConstantTimeCompare([]byte(valid), []byte(key)) == 1 {
			return true
		}
	}
	return false
}
