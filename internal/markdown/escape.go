package markdown

import "strings"

// EscapeCell makes text safe inside a pipe table cell. It is the only escape
// table used for cells, and UnescapeCell is its exact inverse:
//
//	\      -> \\
//	<br>   -> \<br>   (a literal tag in the source)
//	|      -> \|
//	\n     -> <br>
func EscapeCell(s string) string {
	if !strings.ContainsAny(s, "\\|\n<") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '|':
			sb.WriteString(`\|`)
		case c == '\n':
			sb.WriteString("<br>")
		case c == '<' && strings.HasPrefix(s[i:], "<br>"):
			sb.WriteString(`\<br>`)
			i += len("<br>") - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// UnescapeCell reverses EscapeCell.
func UnescapeCell(s string) string {
	if !strings.ContainsAny(s, "\\<") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == '|'):
			sb.WriteByte(s[i+1])
			i++
		case c == '\\' && strings.HasPrefix(s[i+1:], "<br>"):
			sb.WriteString("<br>")
			i += len("<br>")
		case c == '<' && strings.HasPrefix(s[i:], "<br>"):
			sb.WriteByte('\n')
			i += len("<br>") - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// SplitRow splits one rendered table row into unescaped cell texts.
func SplitRow(line string) []string {
	line = strings.TrimPrefix(strings.TrimSpace(line), "|")
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			cur.WriteByte(c)
			cur.WriteByte(line[i+1])
			i++
		case c == '|':
			cells = append(cells, UnescapeCell(strings.TrimSpace(cur.String())))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" || len(cells) == 0 {
		cells = append(cells, UnescapeCell(rest))
	}
	return cells
}

func cellText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return EscapeCell(strings.TrimSpace(raw))
}
