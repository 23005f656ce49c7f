package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/docmark/internal/doctree"
)

func TestChunkOutline_SmallSectionFitsOneChunk(t *testing.T) {
	o := &doctree.Outline{
		Title: "Small",
		Sections: []*doctree.Section{
			{
				Heading: "Section",
				Text:    strings.Repeat("word ", 200), // ~266 tokens, above MinChunk
			},
		},
	}

	chunks := ChunkOutline(o, Config{ChunkSize: 1500, ChunkOverlap: 200, MinChunk: 50})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if !strings.Contains(chunks[0].Text, "word") {
		t.Errorf("expected chunk text to contain 'word', got %q", chunks[0].Text)
	}
}

func TestChunkOutline_LargeSectionRequiresSplitting(t *testing.T) {
	// ~2700 words -> ~3600 tokens.
	largeText := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300)
	o := &doctree.Outline{Sections: []*doctree.Section{{Heading: "Big Section", Text: largeText}}}

	cfg := Config{ChunkSize: 500, ChunkOverlap: 50, MinChunk: 10}
	chunks := ChunkOutline(o, cfg)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks for large text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		// Sentence boundaries allow slight overflow.
		if tokens := EstimateTokens(c.Text); tokens > cfg.ChunkSize*2 {
			t.Errorf("chunk %d: %d tokens exceeds 2x target %d", i, tokens, cfg.ChunkSize)
		}
	}
}

func TestChunkOutline_BreadcrumbPropagation(t *testing.T) {
	o := &doctree.Outline{
		Sections: []*doctree.Section{
			{
				Heading: "Chapter 1",
				Children: []*doctree.Section{
					{Heading: "Section 1.1", Text: strings.Repeat("content ", 200)},
				},
			},
		},
	}

	chunks := ChunkOutline(o, Config{ChunkSize: 2000, ChunkOverlap: 100, MinChunk: 10})

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	bc := chunks[0].Breadcrumb
	want := []string{"Chapter 1", "Section 1.1"}
	if len(bc) != len(want) {
		t.Fatalf("expected breadcrumb %v, got %v", want, bc)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Errorf("breadcrumb[%d]: expected %q, got %q", i, want[i], bc[i])
		}
	}
}

func TestChunkOutline_BreadcrumbIsolation(t *testing.T) {
	o := &doctree.Outline{
		Sections: []*doctree.Section{
			{Heading: "A", Text: strings.Repeat("alpha ", 200)},
			{Heading: "B", Text: strings.Repeat("beta ", 200)},
		},
	}

	chunks := ChunkOutline(o, Config{ChunkSize: 2000, ChunkOverlap: 100, MinChunk: 10})

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Breadcrumb) != 1 || chunks[0].Breadcrumb[0] != "A" {
		t.Errorf("chunk 0 breadcrumb: expected [A], got %v", chunks[0].Breadcrumb)
	}
	if len(chunks[1].Breadcrumb) != 1 || chunks[1].Breadcrumb[0] != "B" {
		t.Errorf("chunk 1 breadcrumb: expected [B], got %v", chunks[1].Breadcrumb)
	}
}

func TestChunkOutline_MinChunkFiltering(t *testing.T) {
	o := &doctree.Outline{Sections: []*doctree.Section{{Heading: "Short", Text: "Hi"}}}
	chunks := ChunkOutline(o, Config{ChunkSize: 1500, ChunkOverlap: 200, MinChunk: 100})
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks (below MinChunk), got %d", len(chunks))
	}
}

func TestChunkOutline_Empty(t *testing.T) {
	chunks := ChunkOutline(&doctree.Outline{Title: "Empty"}, DefaultConfig())
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

func TestChunkOutline_DefaultConfigFallback(t *testing.T) {
	o := &doctree.Outline{Sections: []*doctree.Section{{Text: strings.Repeat("word ", 200)}}}
	if chunks := ChunkOutline(o, Config{}); len(chunks) < 1 {
		t.Errorf("expected at least 1 chunk with zero config (defaults applied), got %d", len(chunks))
	}
}

func TestChunkOutline_UnitRange(t *testing.T) {
	o := &doctree.Outline{Sections: []*doctree.Section{{Heading: "Slide 3", Unit: 3, Text: strings.Repeat("slide ", 50)}}}
	chunks := ChunkOutline(o, Config{MinChunk: 1})
	if len(chunks) != 1 || chunks[0].UnitStart != 3 || chunks[0].UnitEnd != 3 {
		t.Fatalf("expected one chunk for unit 3, got %+v", chunks)
	}
}

func tableMarkdown(rows int) string {
	var sb strings.Builder
	sb.WriteString("| Region | Quarter | Revenue |\n| --- | --- | --- |")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "\n| region %d | Q%d | %d thousand units sold |", i, i%4+1, i*10)
	}
	return sb.String()
}

func TestChunkOutline_TableSplitRepeatsHeader(t *testing.T) {
	table := tableMarkdown(120)
	o := &doctree.Outline{Sections: []*doctree.Section{{Heading: "Sales", Text: table}}}

	chunks := ChunkOutline(o, Config{ChunkSize: 200, ChunkOverlap: 50, MinChunk: 1})
	if len(chunks) < 2 {
		t.Fatalf("expected the table to be split, got %d chunk(s)", len(chunks))
	}

	rows := 0
	for i, c := range chunks {
		lines := strings.Split(c.Text, "\n")
		if lines[0] != "| Region | Quarter | Revenue |" || lines[1] != "| --- | --- | --- |" {
			t.Fatalf("chunk %d does not start with the table header: %q", i, c.Text[:40])
		}
		for _, l := range lines[2:] {
			if !strings.HasPrefix(l, "| region ") {
				t.Fatalf("chunk %d has a non-row line %q", i, l)
			}
			rows++
		}
	}
	if rows != 120 {
		t.Errorf("expected every row exactly once, got %d", rows)
	}
}

func TestChunkOutline_NoOverlapAfterTable(t *testing.T) {
	text := tableMarkdown(10) + "\n\n" + strings.Repeat("Closing remarks follow here. ", 40)
	o := &doctree.Outline{Sections: []*doctree.Section{{Text: text}}}

	chunks := ChunkOutline(o, Config{ChunkSize: 150, ChunkOverlap: 40, MinChunk: 1})
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if strings.Contains(chunks[1].Text, "|") {
		t.Errorf("prose chunk must not carry table overlap: %q", chunks[1].Text)
	}
}

func TestChunkMarkdown(t *testing.T) {
	md := "## Slide 1: Intro\n\n" + strings.Repeat("intro words ", 30) +
		"\n\n---\n\n## Slide 2: Details\n\n### Numbers\n\n" + tableMarkdown(3) + "\n"

	chunks := ChunkMarkdown(md, "Deck", Config{MinChunk: 1})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if got := chunks[0].Breadcrumb; len(got) != 1 || got[0] != "Slide 1: Intro" || chunks[0].UnitStart != 1 {
		t.Errorf("unexpected first chunk %+v", chunks[0])
	}
	if got := chunks[1].Breadcrumb; len(got) != 2 || got[1] != "Numbers" || chunks[1].UnitStart != 2 {
		t.Errorf("unexpected second chunk %+v", chunks[1])
	}
	if !strings.HasPrefix(chunks[1].Text, "| Region |") {
		t.Errorf("expected table text in second chunk, got %q", chunks[1].Text)
	}
}
