package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docmark/internal/doctree"
)

var outlineMarkdown = goldmark.New(goldmark.WithExtensions(extension.Table))

type headingPos struct {
	level     int
	title     string
	lineStart int
	lineEnd   int
	unit      int
}

// Outline parses rendered Markdown into a heading tree. Section text keeps
// its Markdown (tables, lists, image references) so chunks stay renderable.
// Thematic breaks separate units; the unit number of each section is recorded
// when the document has any.
func Outline(src []byte, title string) *doctree.Outline {
	doc := outlineMarkdown.Parser().Parse(text.NewReader(src))
	out := &doctree.Outline{Title: title}

	var heads []headingPos
	breaks := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.ThematicBreak:
			breaks++
		case *ast.Heading:
			lines := node.Lines()
			if lines.Len() == 0 {
				continue
			}
			seg := lines.At(0)
			start := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
			end := seg.Stop
			if i := bytes.IndexByte(src[end:], '\n'); i >= 0 {
				end += i + 1
			} else {
				end = len(src)
			}
			heads = append(heads, headingPos{
				level:     node.Level,
				title:     strings.TrimSpace(string(inlineText(node, src))),
				lineStart: start,
				lineEnd:   end,
				unit:      breaks + 1,
			})
		}
	}
	ruled := breaks > 0

	type stackEntry struct {
		node  *doctree.Section
		level int
	}
	root := &doctree.Section{}
	stack := []stackEntry{{node: root, level: 0}}

	if len(heads) > 0 {
		root.Text = sectionText(src[:heads[0].lineStart])
	} else {
		root.Text = sectionText(src)
	}
	for i, h := range heads {
		bodyStart := h.lineEnd
		bodyEnd := len(src)
		if i+1 < len(heads) {
			bodyEnd = heads[i+1].lineStart
		}
		sec := &doctree.Section{Heading: h.title, Text: sectionText(src[bodyStart:bodyEnd])}
		if ruled {
			sec.Unit = h.unit
		}
		for len(stack) > 1 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, sec)
		stack = append(stack, stackEntry{node: sec, level: h.level})
	}

	out.Sections = root.Children
	if root.Text != "" {
		out.Sections = append([]*doctree.Section{{Text: root.Text}}, out.Sections...)
	}
	return out
}

// sectionText trims a body and drops unit separators.
func sectionText(b []byte) string {
	lines := strings.Split(string(b), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) == "---" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// inlineText gets the plain text of a goldmark inline container.
func inlineText(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
			continue
		}
		buf.Write(inlineText(c, src))
	}
	return buf.Bytes()
}
