package parser

import (
	"strings"
	"testing"
)

func TestOutline_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

| a | b |
| --- | --- |
| 1 | 2 |

## Section B

Section B content.
`
	tree := Outline([]byte(input), "doc")

	if tree.Title != "doc" {
		t.Errorf("expected title %q, got %q", "doc", tree.Title)
	}
	if len(tree.Sections) != 1 {
		t.Fatalf("expected 1 top-level section (h1), got %d", len(tree.Sections))
	}

	h1 := tree.Sections[0]
	if h1.Heading != "Title" {
		t.Errorf("expected h1 heading %q, got %q", "Title", h1.Heading)
	}
	if h1.Text != "Intro text." {
		t.Errorf("expected h1 text %q, got %q", "Intro text.", h1.Text)
	}
	if len(h1.Children) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(h1.Children))
	}

	secA := h1.Children[0]
	if secA.Heading != "Section A" {
		t.Errorf("expected %q, got %q", "Section A", secA.Heading)
	}
	if len(secA.Children) != 1 {
		t.Fatalf("expected 1 h3 child under Section A, got %d", len(secA.Children))
	}
	sub := secA.Children[0]
	if !strings.HasPrefix(sub.Text, "| a | b |") {
		t.Errorf("expected table markdown to be kept, got %q", sub.Text)
	}
	if sub.Unit != 0 {
		t.Errorf("expected no unit numbers without rules, got %d", sub.Unit)
	}
}

func TestOutline_SlidesGetUnitNumbers(t *testing.T) {
	input := "## Slide 1: Intro\n\nHello\n\n---\n\n## Slide 2\n\n- a\n- b\n\n> Note: remember\n"
	tree := Outline([]byte(input), "deck")

	if len(tree.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(tree.Sections))
	}
	if tree.Sections[0].Text != "Hello" {
		t.Errorf("separator leaked into section text: %q", tree.Sections[0].Text)
	}
	for i, sec := range tree.Sections {
		if sec.Unit != i+1 {
			t.Errorf("section %d: expected unit %d, got %d", i, i+1, sec.Unit)
		}
	}
	if !strings.Contains(tree.Sections[1].Text, "> Note: remember") {
		t.Errorf("expected note in slide 2 text, got %q", tree.Sections[1].Text)
	}
}

func TestOutline_NoHeadings(t *testing.T) {
	tree := Outline([]byte("Just some plain text.\n\nAnother paragraph here.\n"), "plain")
	if len(tree.Sections) != 1 {
		t.Fatalf("expected 1 section for headingless markdown, got %d", len(tree.Sections))
	}
	text := tree.Sections[0].Text
	if !strings.Contains(text, "Just some plain text.") || !strings.Contains(text, "Another paragraph here.") {
		t.Errorf("expected both paragraphs, got %q", text)
	}
}

func TestOutline_EmptyInput(t *testing.T) {
	tree := Outline(nil, "empty")
	if len(tree.Sections) != 0 {
		t.Errorf("expected 0 sections for empty input, got %d", len(tree.Sections))
	}
}

func TestOutline_HeadingWithEmphasis(t *testing.T) {
	tree := Outline([]byte("# Hello **bold** world\n\nbody\n"), "")
	if got := tree.Sections[0].Heading; got != "Hello bold world" {
		t.Errorf("expected plain heading text, got %q", got)
	}
}
