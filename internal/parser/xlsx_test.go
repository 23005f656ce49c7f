package parser

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/ooxmltest"
	"github.com/dgallion1/docmark/internal/warn"
)

func TestXLSX_SheetsAsTables(t *testing.T) {
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{
		{Name: "Fruit", Rows: [][]string{{"Name", "Qty"}, {"apple", "3"}, {"", ""}, {"pear", "", "note"}}},
		{Name: "Empty"},
		{Name: "Second", Rows: [][]string{{"x"}}},
	}, nil)
	b := mustBuild(t, data)

	require.Len(t, b.doc.Units, 2, "empty sheets are skipped")
	assert.False(t, b.doc.Ruled)

	fruit := b.doc.Units[0]
	assert.Equal(t, "Fruit", fruit.Nodes[0].(*doctree.Heading).Text)
	tbl := fruit.Nodes[1].(*doctree.Table)
	require.Len(t, tbl.Rows, 3, "blank rows are dropped")
	assert.Equal(t, 3, tbl.Width())
	assert.Equal(t, "note", doctree.PlainText(tbl.Rows[2].Cells[2].Runs))
	assert.Equal(t, "", doctree.PlainText(tbl.Rows[2].Cells[1].Runs))
	assert.Empty(t, b.warnings)
}

func TestXLSX_CellTypes(t *testing.T) {
	sheet := `<?xml version="1.0"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` +
		`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="C1" t="s"><v>1</v></c></row>` +
		`<row r="2"><c r="A2"><v>3.14</v></c><c r="B2" t="b"><v>1</v></c><c r="C2" t="str"><v>formula</v></c></row>` +
		`<row r="3"><c r="A3" t="e"><v>#DIV/0!</v></c><c r="B3" t="s"><v>42</v></c></row>` +
		`</sheetData></worksheet>`
	shared := `<?xml version="1.0"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
		`<si><t>Header</t></si><si><r><t>Rich </t></r><r><t>text</t></r><rPh><t>ignored</t></rPh></si></sst>`
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{{Name: "Data"}}, ooxmltest.Files{
		"xl/worksheets/sheet1.xml": sheet,
		"xl/sharedStrings.xml":     shared,
	})
	b := mustBuild(t, data)

	tbl := b.doc.Units[0].Nodes[1].(*doctree.Table)
	cell := func(r, c int) string {
		if c >= len(tbl.Rows[r].Cells) {
			return ""
		}
		return doctree.PlainText(tbl.Rows[r].Cells[c].Runs)
	}
	assert.Equal(t, "Header", cell(0, 0))
	assert.Equal(t, "", cell(0, 1))
	assert.Equal(t, "Rich text", cell(0, 2))
	assert.Equal(t, "3.14", cell(1, 0))
	assert.Equal(t, "TRUE", cell(1, 1))
	assert.Equal(t, "formula", cell(1, 2))
	assert.Equal(t, "#DIV/0!", cell(2, 0))

	assert.Equal(t, []warn.Code{warn.MalformedSegment, warn.MalformedSegment}, codes(b.warnings))
	assert.Equal(t, "Data!A3", b.warnings[0].Location)
	assert.Equal(t, "Data!B3", b.warnings[1].Location)
}

func TestXLSX_DrawingImages(t *testing.T) {
	sheet := `<?xml version="1.0"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheetData/><drawing r:id="rId1"/></worksheet>`
	drawing := `<?xml version="1.0"?><xdr:wsDr xmlns:xdr="urn:xdr" xmlns:a="urn:a" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<xdr:twoCellAnchor><xdr:pic><xdr:nvPicPr><xdr:cNvPr id="2" name="Pic" descr="Sales chart"/></xdr:nvPicPr>` +
		`<xdr:blipFill><a:blip r:embed="rId1"/></xdr:blipFill></xdr:pic></xdr:twoCellAnchor></xdr:wsDr>`
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{{Name: "Charts"}}, ooxmltest.Files{
		"xl/worksheets/sheet1.xml":            sheet,
		"xl/worksheets/_rels/sheet1.xml.rels": ooxmltest.Rels(ooxmltest.Rel{ID: "rId1", Type: ooxmltest.RelDrawing, Target: "../drawings/drawing1.xml"}),
		"xl/drawings/drawing1.xml":            drawing,
		"xl/drawings/_rels/drawing1.xml.rels": ooxmltest.Rels(ooxmltest.Rel{ID: "rId1", Type: ooxmltest.RelImage, Target: "../media/image1.jpeg"}),
		"xl/media/image1.jpeg":                "\xff\xd8\xff",
	})
	b := mustBuild(t, data)

	require.Len(t, b.doc.Units, 1)
	nodes := b.doc.Units[0].Nodes
	require.Len(t, nodes, 2)
	assert.Equal(t, "Charts", nodes[0].(*doctree.Heading).Text)
	img := nodes[1].(*doctree.Image)
	assert.Equal(t, "Sales chart", img.Alt)
	assert.Equal(t, "xl/media/image1.jpeg", img.Target)
}

func TestColumnIndex(t *testing.T) {
	tests := []struct {
		ref  string
		want int
		ok   bool
	}{
		{"A1", 0, true},
		{"Z9", 25, true},
		{"AA10", 26, true},
		{"XFD1", 16383, true},
		{"XFE1", 0, false},
		{"12", 0, false},
	}
	for _, tt := range tests {
		got, ok := columnIndex(tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.ref)
		}
	}
}

const datesStyles = `<?xml version="1.0"?><styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
	`<numFmts count="2"><numFmt numFmtId="164" formatCode="yyyy\-mm\-dd"/><numFmt numFmtId="165" formatCode="&quot;day&quot; 0.00"/></numFmts>` +
	`<cellStyleXfs count="1"><xf numFmtId="14"/></cellStyleXfs>` +
	`<cellXfs count="4"><xf numFmtId="0"/><xf numFmtId="14"/><xf numFmtId="164"/><xf numFmtId="165"/></cellXfs>` +
	`</styleSheet>`

func datesSheet(cells string) string {
	return `<?xml version="1.0"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` +
		`<row r="1">` + cells + `</row></sheetData></worksheet>`
}

func TestXLSX_DateCells(t *testing.T) {
	fraction := (14*3600 + 30*60 + 15) / 86400.0
	cells := `<c r="A1" s="1"><v>45306</v></c>` +
		`<c r="B1" s="1"><v>45306.5</v></c>` +
		`<c r="C1" s="2"><v>` + strconv.FormatFloat(45306+fraction, 'f', -1, 64) + `</v></c>` +
		`<c r="D1" s="0"><v>45306</v></c>` +
		`<c r="E1" s="3"><v>45306</v></c>` +
		`<c r="F1" s="1"><v>0.5</v></c>` +
		`<c r="G1" s="1" t="str"><v>45306</v></c>`
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{{Name: "Dates"}}, ooxmltest.Files{
		"xl/worksheets/sheet1.xml": datesSheet(cells),
		"xl/styles.xml":            datesStyles,
	})
	b := mustBuild(t, data)

	tbl := b.doc.Units[0].Nodes[1].(*doctree.Table)
	var got []string
	for _, c := range tbl.Rows[0].Cells {
		got = append(got, doctree.PlainText(c.Runs))
	}
	assert.Equal(t, []string{
		"2024-01-15",
		"2024-01-15 12:00:00",
		"2024-01-15 14:30:15",
		"45306",
		"45306",
		"12:00:00",
		"45306",
	}, got)
	assert.Empty(t, b.warnings)
}

func TestXLSX_Date1904(t *testing.T) {
	workbook := `<?xml version="1.0"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<workbookPr date1904="1"/><sheets><sheet name="Dates" sheetId="1" r:id="rId1"/></sheets></workbook>`
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{{Name: "Dates"}}, ooxmltest.Files{
		"xl/workbook.xml":          workbook,
		"xl/worksheets/sheet1.xml": datesSheet(`<c r="A1" s="1"><v>43844</v></c>`),
		"xl/styles.xml":            datesStyles,
	})
	b := mustBuild(t, data)

	tbl := b.doc.Units[0].Nodes[1].(*doctree.Table)
	assert.Equal(t, "2024-01-15", doctree.PlainText(tbl.Rows[0].Cells[0].Runs))
}

func TestIsDateFormatCode(t *testing.T) {
	tests := map[string]bool{
		"yyyy-mm-dd":          true,
		"d/m/yy h:mm":         true,
		"[h]:mm:ss":           true,
		"[$-409]mmmm d, yyyy": true,
		"General":             false,
		"0.00":                false,
		"#,##0;[Red]-#,##0":   false,
		`"days" 0`:            false,
		`0\d`:                 false,
		"0.00E+00":            false,
	}
	for code, want := range tests {
		assert.Equal(t, want, isDateFormatCode(code), code)
	}
}

func TestFormatSerial(t *testing.T) {
	tests := []struct {
		v        string
		date1904 bool
		want     string
		ok       bool
	}{
		{"1", false, "1900-01-01", true},
		{"59", false, "1900-02-28", true},
		{"61", false, "1900-03-01", true},
		{"45306.99999999", false, "2024-01-16", true},
		{"0", true, "1904-01-01", true},
		{"-1", false, "", false},
		{"3000000", false, "", false},
		{"abc", false, "", false},
	}
	for _, tt := range tests {
		got, ok := formatSerial(tt.v, tt.date1904)
		assert.Equal(t, tt.ok, ok, tt.v)
		assert.Equal(t, tt.want, got, tt.v)
	}
}
