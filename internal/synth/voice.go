// Package synth provides the speech synthesis adapter: provider voice
// resolution, a bounded retry policy, and the HTTP client for an
// ElevenLabs-compatible text-to-speech API.
package synth

import (
	"strings"
	"unicode"
)

// minVoiceIDLength is the shortest value treated as a literal provider voice
// identifier. Shorter values are symbolic names (e.g. "Rachel") and resolve
// to the configured default.
const minVoiceIDLength = 20

// ResolveVoice returns value unchanged when it looks like a provider voice
// identifier, otherwise the configured default identifier.
func ResolveVoice(value, defaultID string) string {
	trimmed := strings.TrimSpace(value)
	if looksLikeVoiceID(trimmed) {
		return trimmed
	}

	return defaultID
}

// looksLikeVoiceID reports whether v is long and alphanumeric-with-underscores.
func looksLikeVoiceID(v string) bool {
	if len(v) < minVoiceIDLength {
		return false
	}

	alnum := 0

	for _, r := range v {
		switch {
		case r == '_':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alnum++
		default:
			return false
		}
	}

	return alnum > 0
}
