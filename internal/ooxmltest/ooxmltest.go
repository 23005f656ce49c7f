// Package ooxmltest assembles small OOXML packages in memory for tests.
package ooxmltest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Files maps entry names to their contents.
type Files map[string]string

// Zip writes files into a deflated archive, in name order.
func Zip(files Files) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Without rewrites an archive without the named entries.
func Without(data []byte, names ...string) []byte {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		panic(err)
	}
	drop := map[string]bool{}
	for _, n := range names {
		drop[n] = true
	}
	files := Files{}
	for _, f := range zr.File {
		if drop[f.Name] {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			panic(err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			panic(err)
		}
		rc.Close()
		files[f.Name] = buf.String()
	}
	return Zip(files)
}

// ZipBytes is Zip for binary payloads such as images.
func ZipBytes(files map[string][]byte) []byte {
	conv := make(Files, len(files))
	for k, v := range files {
		conv[k] = string(v)
	}
	return Zip(conv)
}

const relsHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`

// Rel is one relationship in a .rels manifest.
type Rel struct {
	ID, Type, Target string
	External         bool
}

// Rels renders a relationships manifest.
func Rels(rels ...Rel) string {
	var sb strings.Builder
	sb.WriteString(relsHeader)
	for _, r := range rels {
		mode := ""
		if r.External {
			mode = ` TargetMode="External"`
		}
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="%s" Target="%s"%s/>`, r.ID, r.Type, r.Target, mode)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

// Relationship type URIs used by fixtures.
const (
	RelOfficeDoc = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	RelSlide     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	RelNotes     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	RelImage     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	RelHyperlink = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	RelSheet     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet"
	RelDrawing   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/drawing"
	RelStrings   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
	`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture"`

// WordBody wraps body XML in a word/document.xml envelope.
func WordBody(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document ` + wordNS +
		`><w:body>` + body + `</w:body></w:document>`
}

// Para renders a plain paragraph, optionally styled.
func Para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

// Table renders a w:tbl with one paragraph per cell.
func Table(rows ...[]string) string {
	var sb strings.Builder
	sb.WriteString(`<w:tbl>`)
	for _, row := range rows {
		sb.WriteString(`<w:tr>`)
		for _, cell := range row {
			sb.WriteString(`<w:tc>` + Para("", cell) + `</w:tc>`)
		}
		sb.WriteString(`</w:tr>`)
	}
	sb.WriteString(`</w:tbl>`)
	return sb.String()
}

// Docx builds a minimal word package around a document body.
func Docx(body string, extra Files) []byte {
	files := Files{
		"[Content_Types].xml": contentTypes,
		"_rels/.rels":         Rels(Rel{ID: "rId1", Type: RelOfficeDoc, Target: "word/document.xml"}),
		"word/document.xml":   WordBody(body),
	}
	for k, v := range extra {
		files[k] = v
	}
	return Zip(files)
}

const contentTypes = `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`

const presNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`

// Slide is the content of one fixture slide.
type Slide struct {
	Title  string
	Body   []string
	Notes  string
	Extra  string // raw XML appended to the shape tree
	Rels   []Rel
	Broken bool // write malformed XML after the title
}

// SlideXML renders a p:sld part.
func SlideXML(s Slide) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><p:sld ` + presNS + `><p:cSld><p:spTree>`)
	if s.Title != "" {
		sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="1" name="Title"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>` +
			`<p:txBody><a:p><a:r><a:t>` + s.Title + `</a:t></a:r></a:p></p:txBody></p:sp>`)
	}
	if s.Broken {
		sb.WriteString(`<p:sp><p:txBody><a:p><a:r><a:t>cut</a:r>`)
		return sb.String()
	}
	if len(s.Body) > 0 {
		sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Body"/><p:cNvSpPr/><p:nvPr><p:ph idx="1"/></p:nvPr></p:nvSpPr><p:txBody>`)
		for _, line := range s.Body {
			sb.WriteString(`<a:p><a:r><a:t>` + line + `</a:t></a:r></a:p>`)
		}
		sb.WriteString(`</p:txBody></p:sp>`)
	}
	sb.WriteString(s.Extra)
	sb.WriteString(`</p:spTree></p:cSld></p:sld>`)
	return sb.String()
}

func notesXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><p:notes ` + presNS + `><p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image"/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr></p:sp>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes"/><p:cNvSpPr/><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>` +
		`<p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>` +
		`</p:spTree></p:cSld></p:notes>`
}

// Pptx builds a presentation with the given slides in order.
func Pptx(slides []Slide, extra Files) []byte {
	files := Files{
		"[Content_Types].xml": contentTypes,
		"_rels/.rels":         Rels(Rel{ID: "rId1", Type: RelOfficeDoc, Target: "ppt/presentation.xml"}),
	}
	var ids strings.Builder
	var presRels []Rel
	for i, s := range slides {
		n := i + 1
		rid := fmt.Sprintf("rId%d", n+10)
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="%s"/>`, 255+n, rid)
		presRels = append(presRels, Rel{ID: rid, Type: RelSlide, Target: fmt.Sprintf("slides/slide%d.xml", n)})
		files[fmt.Sprintf("ppt/slides/slide%d.xml", n)] = SlideXML(s)

		rels := append([]Rel(nil), s.Rels...)
		if s.Notes != "" {
			rels = append(rels, Rel{ID: "rIdN", Type: RelNotes, Target: fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			files[fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n)] = notesXML(s.Notes)
		}
		if len(rels) > 0 {
			files[fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n)] = Rels(rels...)
		}
	}
	files["ppt/presentation.xml"] = `<?xml version="1.0" encoding="UTF-8"?><p:presentation ` + presNS +
		`><p:sldIdLst>` + ids.String() + `</p:sldIdLst></p:presentation>`
	files["ppt/_rels/presentation.xml.rels"] = Rels(presRels...)
	for k, v := range extra {
		files[k] = v
	}
	return Zip(files)
}

// Sheet is one fixture worksheet; cells are written as inline strings.
type Sheet struct {
	Name string
	Rows [][]string
}

// Xlsx builds a workbook with the given sheets.
func Xlsx(sheets []Sheet, extra Files) []byte {
	files := Files{
		"[Content_Types].xml": contentTypes,
		"_rels/.rels":         Rels(Rel{ID: "rId1", Type: RelOfficeDoc, Target: "xl/workbook.xml"}),
	}
	var sb strings.Builder
	var wbRels []Rel
	for i, sh := range sheets {
		n := i + 1
		rid := fmt.Sprintf("rId%d", n)
		fmt.Fprintf(&sb, `<sheet name="%s" sheetId="%d" r:id="%s"/>`, sh.Name, n, rid)
		wbRels = append(wbRels, Rel{ID: rid, Type: RelSheet, Target: fmt.Sprintf("worksheets/sheet%d.xml", n)})
		files[fmt.Sprintf("xl/worksheets/sheet%d.xml", n)] = sheetXML(sh.Rows)
	}
	files["xl/workbook.xml"] = `<?xml version="1.0" encoding="UTF-8"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>` + sb.String() + `</sheets></workbook>`
	files["xl/_rels/workbook.xml.rels"] = Rels(wbRels...)
	for k, v := range extra {
		files[k] = v
	}
	return Zip(files)
}

func sheetXML(rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for r, row := range rows {
		fmt.Fprintf(&sb, `<row r="%d">`, r+1)
		for c, v := range row {
			if v == "" {
				continue
			}
			fmt.Fprintf(&sb, `<c r="%s%d" t="inlineStr"><is><t>%s</t></is></c>`, string(rune('A'+c)), r+1, v)
		}
		sb.WriteString(`</row>`)
	}
	sb.WriteString(`</sheetData></worksheet>`)
	return sb.String()
}
