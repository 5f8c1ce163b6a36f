package ai

import "strings"

// IsQuotaExhausted reports whether err is a provider rate or quota
// error. Providers surface these as HTTP 429 or, for Gemini, a
// RESOURCE_EXHAUSTED status embedded in the error text. Quota errors
// get escalating backoff; other failures retry on a flat delay.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
