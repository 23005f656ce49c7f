package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmark/internal/doctree"
)

func TestTable_PadsRaggedRows(t *testing.T) {
	tbl := &doctree.Table{Rows: []doctree.Row{
		row("Name", "Qty"),
		row("apple", "3", "extra"),
		row("pear"),
	}}
	got := Table(tbl)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| Name | Qty |  |", lines[0])
	assert.Equal(t, "| --- | --- | --- |", lines[1])
	assert.Equal(t, "| apple | 3 | extra |", lines[2])
	assert.Equal(t, "| pear |  |  |", lines[3])
	for _, l := range lines {
		assert.Len(t, SplitRow(l), 3, l)
	}
}

func TestTable_SeparatorForSingleRow(t *testing.T) {
	got := Table(&doctree.Table{Rows: []doctree.Row{row("only")}})
	assert.Equal(t, "| only |\n| --- |", got)
}

func TestTable_CellsArePlainText(t *testing.T) {
	tbl := &doctree.Table{Rows: []doctree.Row{{Cells: []doctree.Cell{{Runs: []doctree.Run{
		{Text: "bold", Bold: true}, {Text: " and "}, {Text: "link", Link: "http://x"},
	}}}}}}
	assert.Equal(t, "| bold and link |\n| --- |", Table(tbl))
}

func TestEscapeCell_RoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"a|b",
		`back\slash`,
		"line1\nline2",
		"literal <br> tag",
		`\<br>`,
		`\|`,
		"\\\n|<br><br>\\\\",
		"<b>not a break</b>",
		"trailing backslash \\",
		"多语言 | 🙂",
	}
	for _, in := range inputs {
		esc := EscapeCell(in)
		assert.NotContains(t, strings.ReplaceAll(esc, `\|`, ""), "|", "unescaped pipe in %q", esc)
		assert.NotContains(t, esc, "\n")
		assert.Equal(t, in, UnescapeCell(esc), "round trip of %q via %q", in, esc)
	}
}

func TestTable_RoundTripThroughRenderedRow(t *testing.T) {
	cells := []string{"a | b", `c\d`, "e\nf", "<br>"}
	tbl := &doctree.Table{Rows: []doctree.Row{row(cells...)}}
	header := strings.Split(Table(tbl), "\n")[0]
	assert.Equal(t, cells, SplitRow(header))
}

func TestTable_TrimsAndNormalizesNewlines(t *testing.T) {
	tbl := &doctree.Table{Rows: []doctree.Row{row("  a\r\nb  ")}}
	assert.Equal(t, "| a<br>b |\n| --- |", Table(tbl))
}
