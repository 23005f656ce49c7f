package chunker

import (
	"strings"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/parser"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize    int // Target chunk size in tokens.
	ChunkOverlap int // Overlap between consecutive prose chunks in tokens.
	MinChunk     int // Minimum chunk size to emit.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1500,
		ChunkOverlap: 200,
		MinChunk:     100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap <= 0 {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.MinChunk <= 0 {
		c.MinChunk = d.MinChunk
	}
	return c
}

// ChunkMarkdown outlines rendered Markdown and chunks it.
func ChunkMarkdown(md, title string, cfg Config) []doctree.Chunk {
	return ChunkOutline(parser.Outline([]byte(md), title), cfg)
}

// ChunkOutline walks the heading tree and produces structure-aware chunks.
// Tables are split between rows and every piece repeats the header.
func ChunkOutline(o *doctree.Outline, cfg Config) []doctree.Chunk {
	cfg = cfg.withDefaults()
	var chunks []doctree.Chunk
	for _, s := range o.Sections {
		walkSection(s, nil, cfg, &chunks)
	}
	return chunks
}

func walkSection(s *doctree.Section, breadcrumb []string, cfg Config, chunks *[]doctree.Chunk) {
	bc := append([]string(nil), breadcrumb...)
	if s.Heading != "" {
		bc = append(bc, s.Heading)
	}

	if text := strings.TrimSpace(s.Text); text != "" {
		parts := []string{text}
		if EstimateTokens(text) > cfg.ChunkSize {
			parts = splitText(text, cfg.ChunkSize, cfg.ChunkOverlap)
		}
		for _, part := range parts {
			if EstimateTokens(part) < cfg.MinChunk {
				continue
			}
			*chunks = append(*chunks, doctree.Chunk{
				Text:       part,
				Index:      len(*chunks),
				Breadcrumb: copyBreadcrumb(bc),
				UnitStart:  s.Unit,
				UnitEnd:    s.Unit,
			})
		}
	}

	for _, child := range s.Children {
		walkSection(child, bc, cfg, chunks)
	}
}

// splitText breaks Markdown into chunks of approximately targetTokens.
// Prose chunks carry overlap; tables never do.
func splitText(text string, targetTokens, overlapTokens int) []string {
	blocks := splitByBlocks(text)

	var result []string
	var current strings.Builder
	currentTokens := 0
	lastTable := false

	flush := func() {
		if currentTokens > 0 {
			result = append(result, current.String())
		}
		current.Reset()
		currentTokens = 0
	}

	for _, block := range blocks {
		blockTokens := EstimateTokens(block)
		table := isTable(block)

		// A single block over the target is split on its own.
		if blockTokens > targetTokens {
			flush()
			if table {
				result = append(result, splitTable(block, targetTokens)...)
			} else {
				result = append(result, splitBySentences(block, targetTokens, overlapTokens)...)
			}
			lastTable = table
			continue
		}

		if currentTokens+blockTokens > targetTokens && currentTokens > 0 {
			overlap := ""
			if !lastTable {
				overlap = getOverlapText(current.String(), overlapTokens)
			}
			flush()
			if overlap != "" && !table {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
		currentTokens += blockTokens
		lastTable = table
	}
	flush()

	return result
}

// splitByBlocks splits on blank lines.
func splitByBlocks(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func isTable(block string) bool {
	lines := strings.SplitN(block, "\n", 3)
	return len(lines) >= 2 && strings.HasPrefix(lines[0], "|") && strings.HasPrefix(lines[1], "| ---")
}

// splitTable cuts a pipe table between rows, repeating the header and
// separator at the top of every piece.
func splitTable(block string, targetTokens int) []string {
	lines := strings.Split(block, "\n")
	head := lines[0] + "\n" + lines[1]
	headTokens := EstimateTokens(head)

	var result []string
	var current strings.Builder
	currentTokens := 0
	for _, row := range lines[2:] {
		rowTokens := EstimateTokens(row)
		if currentTokens > 0 && headTokens+currentTokens+rowTokens > targetTokens {
			result = append(result, head+current.String())
			current.Reset()
			currentTokens = 0
		}
		current.WriteString("\n")
		current.WriteString(row)
		currentTokens += rowTokens
	}
	if currentTokens > 0 || len(result) == 0 {
		result = append(result, head+current.String())
	}
	return result
}

// splitBySentences breaks a large paragraph into sentence-based chunks.
func splitBySentences(text string, targetTokens, overlapTokens int) []string {
	sentences := splitSentences(text)

	var result []string
	var current strings.Builder
	currentTokens := 0

	for _, sent := range sentences {
		sentTokens := EstimateTokens(sent)

		if currentTokens+sentTokens > targetTokens && currentTokens > 0 {
			result = append(result, current.String())
			overlap := getOverlapText(current.String(), overlapTokens)
			current.Reset()
			currentTokens = 0
			if overlap != "" {
				current.WriteString(overlap)
				currentTokens = EstimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if currentTokens > 0 {
		result = append(result, current.String())
	}

	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}

// getOverlapText extracts the last N tokens worth of text for overlap.
func getOverlapText(text string, targetTokens int) string {
	words := strings.Fields(text)
	// Approximate: 1.33 tokens per word.
	targetWords := int(float64(targetTokens) / 1.33)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

func copyBreadcrumb(bc []string) []string {
	if len(bc) == 0 {
		return nil
	}
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
