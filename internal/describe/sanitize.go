package describe

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxDescriptionRunes = 300

var codeBlockRe = regexp.MustCompile("(?s)^```(?:\\w+)?\\s*(.*?)\\s*```$")

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

var leadIn = regexp.MustCompile(`(?i)^(this\s+image\s+(shows|depicts)|the\s+image\s+(shows|depicts)|image\s+of)\s*:?\s*`)

// Sanitize turns model output into single-line alt text. It returns false
// when nothing usable remains.
func Sanitize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = m[1]
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, `"'`)
	if injectionPattern.MatchString(s) {
		return "", false
	}
	if stripped := leadIn.ReplaceAllString(s, ""); stripped != "" {
		s = upperFirst(stripped)
	}
	if utf8.RuneCountInString(s) > maxDescriptionRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxDescriptionRunes-1])) + "…"
	}
	if utf8.RuneCountInString(s) < 3 {
		return "", false
	}
	return s, true
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r >= 'a' && r <= 'z' {
		return string(r-'a'+'A') + s[n:]
	}
	return s
}
