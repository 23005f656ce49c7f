package chunker

import "strings"

// EstimateTokens gives a rough token count from words, plus one token per
// pair of table pipes since Markdown table syntax is not free.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words)*1.33) + strings.Count(text, "|")/2
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
