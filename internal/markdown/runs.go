package markdown

import (
	"strings"
	"unicode"

	"github.com/dgallion1/docmark/internal/doctree"
)

// Merge joins adjacent runs that share styling. Text is never reordered or dropped.
func Merge(runs []doctree.Run) []doctree.Run {
	var out []doctree.Run
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].SameStyle(r) {
			out[n-1].Text += r.Text
			continue
		}
		out = append(out, r)
	}
	return out
}

// Runs renders inline text with emphasis markers and links.
func Runs(runs []doctree.Run) string {
	var sb strings.Builder
	for _, r := range Merge(runs) {
		sb.WriteString(run(r))
	}
	return sb.String()
}

func run(r doctree.Run) string {
	text := strings.ReplaceAll(r.Text, "\r\n", "\n")
	if !r.Bold && !r.Italic && r.Link == "" {
		return text
	}
	core := strings.TrimFunc(text, unicode.IsSpace)
	if core == "" {
		return text
	}
	start := strings.Index(text, core)
	lead, trail := text[:start], text[start+len(core):]

	marker := ""
	switch {
	case r.Bold && r.Italic:
		marker = "***"
	case r.Bold:
		marker = "**"
	case r.Italic:
		marker = "*"
	}
	core = marker + core + marker
	if r.Link != "" {
		core = "[" + core + "](" + strings.ReplaceAll(r.Link, " ", "%20") + ")"
	}
	return lead + core + trail
}
