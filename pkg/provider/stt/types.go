package stt

import (
	"strings"
)

// KeywordBoost is a word whose recognition probability should be raised.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Eldrinax").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// KeywordPrompt joins the keywords into a comma-separated prompt for
// backends that accept a free-text context hint instead of boost weights.
// Returns an empty string when there are no keywords.
func KeywordPrompt(keywords []KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if w := strings.TrimSpace(kw.Keyword); w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, ", ")
}
