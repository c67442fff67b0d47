package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const snippetLength = 120

// bestSnippet returns the window of text containing the most query terms.
func bestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	windowSize := max(maxLength/8, 1)
	if windowSize >= len(words) {
		return truncate(strings.Join(words, " "), maxLength)
	}

	bestScore, bestStart := 0, 0
	for i := 0; i <= len(words)-windowSize; i++ {
		window := strings.ToLower(strings.Join(words[i:i+windowSize], " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(window, term) {
				score++
			}
		}
		if score > bestScore {
			bestScore, bestStart = score, i
		}
	}

	return truncate(strings.Join(words[bestStart:bestStart+windowSize], " "), maxLength)
}

// tokenize breaks text into lower-case terms of two or more characters.
func tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	flush := func() {
		if utf8.RuneCountInString(current.String()) > 1 {
			terms = append(terms, current.String())
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return terms
}

// truncate limits text to maxLen runes with an ellipsis.
func truncate(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen-1]) + "…"
}
