// Package markdown renders a doctree.Document as normalized Markdown.
package markdown

import (
	"path"
	"strconv"
	"strings"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/warn"
)

// MaxHeadingLevel is the deepest heading Markdown can express.
const MaxHeadingLevel = 6

// AltSource supplies resolved image descriptions by placeholder id.
type AltSource interface {
	Alt(id string) (string, bool)
}

// Alts is a map-backed AltSource.
type Alts map[string]string

func (a Alts) Alt(id string) (string, bool) {
	s, ok := a[id]
	return s, ok && s != ""
}

// Render walks doc once and returns its Markdown and the warnings raised while
// rendering. The output is a pure function of doc and alts.
func Render(doc *doctree.Document, alts AltSource) (string, []warn.Warning) {
	if alts == nil {
		alts = Alts(nil)
	}
	r := &renderer{alts: alts}

	sep := "\n\n"
	if doc.Ruled {
		sep = "\n\n---\n\n"
	}
	var units []string
	for _, u := range doc.Units {
		if s := r.unit(u); s != "" {
			units = append(units, s)
		}
	}
	return normalize(strings.Join(units, sep)), r.warnings
}

type renderer struct {
	alts     AltSource
	warnings []warn.Warning
}

func (r *renderer) warn(code warn.Code, loc, msg string) {
	r.warnings = append(r.warnings, warn.Warning{Code: code, Message: msg, Location: loc})
}

func (r *renderer) unit(u *doctree.Unit) string {
	var blocks []string
	for i := 0; i < len(u.Nodes); i++ {
		if _, ok := u.Nodes[i].(*doctree.ListItem); ok {
			j := i
			for j < len(u.Nodes) {
				if _, ok := u.Nodes[j].(*doctree.ListItem); !ok {
					break
				}
				j++
			}
			if s := list(u.Nodes[i:j]); s != "" {
				blocks = append(blocks, s)
			}
			i = j - 1
			continue
		}
		if s := r.block(u.Name, u.Nodes[i]); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (r *renderer) block(loc string, n doctree.Node) string {
	switch n := n.(type) {
	case *doctree.Heading:
		return r.heading(loc, n)
	case *doctree.Paragraph:
		return strings.TrimSpace(Runs(n.Runs))
	case *doctree.Table:
		return Table(n)
	case *doctree.Image:
		return r.image(n)
	case *doctree.Note:
		return note(n)
	}
	return ""
}

func (r *renderer) heading(loc string, h *doctree.Heading) string {
	text := strings.Join(strings.Fields(h.Text), " ")
	if text == "" {
		return ""
	}
	level := h.Level
	if level < 1 {
		level = 1
	}
	if level > MaxHeadingLevel {
		r.warn(warn.UnsupportedFeature, loc,
			"heading level "+strconv.Itoa(level)+" clamped to "+strconv.Itoa(MaxHeadingLevel))
		level = MaxHeadingLevel
	}
	return strings.Repeat("#", level) + " " + text
}

// image emits the reference; this is where resolved descriptions are spliced in.
func (r *renderer) image(img *doctree.Image) string {
	alt, ok := r.alts.Alt(img.ID)
	if !ok {
		alt = img.Alt
	}
	if strings.TrimSpace(alt) == "" {
		alt = img.Name
	}
	if alt == "" {
		alt = img.ID
	}
	ref := img.Name
	if ref == "" && img.Target != "" {
		ref = path.Base(img.Target)
	}
	if ref == "" {
		ref = img.RelID
	}
	return "![" + escapeAlt(alt) + "](" + strings.ReplaceAll(ref, " ", "%20") + ")"
}

func escapeAlt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`).Replace(s)
}

func note(n *doctree.Note) string {
	text := strings.TrimSpace(doctree.PlainText(n.Runs))
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var sb strings.Builder
	for i, line := range lines {
		if i == 0 {
			sb.WriteString("> Note: ")
		} else {
			sb.WriteString("\n> ")
		}
		sb.WriteString(strings.TrimSpace(line))
	}
	return sb.String()
}

func list(items []doctree.Node) string {
	var lines []string
	counters := map[int]int{}
	for _, n := range items {
		li := n.(*doctree.ListItem)
		text := strings.Join(strings.Fields(Runs(li.Runs)), " ")
		if text == "" {
			continue
		}
		depth := li.Depth
		if depth < 0 {
			depth = 0
		}
		for d := range counters {
			if d > depth {
				delete(counters, d)
			}
		}
		if li.Ordered {
			counters[depth]++
			lines = append(lines, strings.Repeat("   ", depth)+strconv.Itoa(counters[depth])+". "+text)
		} else {
			delete(counters, depth)
			lines = append(lines, strings.Repeat("  ", depth)+"- "+text)
		}
	}
	return strings.Join(lines, "\n")
}

// Table renders a pipe table. The first row is the header; every row is
// padded to the widest row.
func Table(t *doctree.Table) string {
	width := t.Width()
	if width == 0 {
		return ""
	}
	var sb strings.Builder
	for i, row := range t.Rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte('|')
		for c := 0; c < width; c++ {
			sb.WriteByte(' ')
			if c < len(row.Cells) {
				sb.WriteString(cellText(doctree.PlainText(row.Cells[c].Runs)))
			}
			sb.WriteString(" |")
		}
		if i == 0 {
			sb.WriteString("\n|")
			for c := 0; c < width; c++ {
				sb.WriteString(" --- |")
			}
		}
	}
	return sb.String()
}

// normalize strips trailing whitespace from every line, collapses runs of
// blank lines and ends the text with exactly one newline.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := true
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}
