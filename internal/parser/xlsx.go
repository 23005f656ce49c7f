package parser

import (
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

// maxColumns is the widest sheet SpreadsheetML allows (XFD).
const maxColumns = 16384

// XLSXParser builds documents from SpreadsheetML packages. Every non-empty
// sheet is a unit with a heading and one table whose first row is the header.
type XLSXParser struct{}

type sheetRef struct {
	name string
	part string
}

func (p *XLSXParser) Parse(s *Session) (*doctree.Document, error) {
	wb, err := mainPart(s.Pkg, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	if !s.Pkg.Has(wb) {
		return nil, errors.Wrapf(ErrMissingPart, "%s", wb)
	}
	wbRels, err := rels.Load(s.Pkg, wb, s.Warn)
	if err != nil {
		return nil, err
	}
	sheets, date1904, err := workbookSheets(s, wb, wbRels)
	if err != nil {
		return nil, err
	}
	shared, err := sharedStrings(s, partByType(wbRels, wb, relSharedStrings, "xl/sharedStrings.xml"))
	if err != nil {
		return nil, err
	}
	styles, err := loadCellStyles(s, partByType(wbRels, wb, relStyles, "xl/styles.xml"), date1904)
	if err != nil {
		return nil, err
	}

	doc := &doctree.Document{Format: doctree.XLSX}
	for _, sh := range sheets {
		if !s.Pkg.Has(sh.part) {
			s.Warn.Add(warn.SkippedElement, sh.part, "worksheet %q not found", sh.name)
			if err := s.Warn.Err(); err != nil {
				return nil, err
			}
			continue
		}
		unit, err := buildSheet(s, sh, shared, styles)
		if err != nil {
			return nil, err
		}
		if unit != nil {
			doc.Units = append(doc.Units, unit)
		}
	}

	title, err := coreTitle(s)
	if err != nil {
		return nil, err
	}
	doc.Title = title
	s.Log.Debug("xlsx built", "sheets", len(sheets), "units", len(doc.Units))
	return doc, s.Warn.Err()
}

// workbookSheets lists the sheets in workbook order and reports whether the
// workbook uses the 1904 date system.
func workbookSheets(s *Session, wb string, m rels.Map) ([]sheetRef, bool, error) {
	data, err := s.read(wb)
	if err != nil || data == nil {
		return nil, false, err
	}
	st := s.stream(wb, data)
	var out []sheetRef
	date1904 := false
	for {
		ev, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.xmlError(wb, "workbook", err)
			break
		}
		if ev.IsOpen("workbookPr") {
			date1904 = boolAttr(ev.Attr("date1904"))
			continue
		}
		if !ev.IsOpen("sheet") {
			continue
		}
		name := ev.AttrOr("name", "")
		id, _ := ev.RelAttr("id")
		r, ok := m.Lookup(id)
		if !ok {
			s.Warn.Add(warn.SkippedElement, wb, "sheet %q relationship '%s' not found", name, id)
			continue
		}
		out = append(out, sheetRef{name: name, part: rels.ResolveTarget(wb, r.Target)})
	}
	return out, date1904, s.Warn.Err()
}

// sharedStrings reads the shared string table; rich text runs are flattened.
func sharedStrings(s *Session, name string) ([]string, error) {
	data, err := s.readOptional(name)
	if err != nil || data == nil {
		return nil, err
	}
	st := s.stream(name, data)
	var out []string
	var sb strings.Builder
	inSI, inT, skipDepth := false, false, 0
	for {
		ev, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.xmlError(name, "shared strings", err)
			break
		}
		switch {
		case skipDepth > 0:
			if ev.Kind == xmlstream.Close && ev.Depth == skipDepth {
				skipDepth = 0
			}
		case ev.IsOpen("si"):
			inSI = true
			sb.Reset()
		case ev.IsClose("si"):
			inSI = false
			out = append(out, sb.String())
		case ev.IsOpen("rPh"), ev.IsOpen("phoneticPr"):
			skipDepth = ev.Depth
		case ev.IsOpen("t"):
			inT = inSI
		case ev.IsClose("t"):
			inT = false
		case ev.Kind == xmlstream.Text && inT:
			sb.WriteString(ev.Text)
		}
	}
	return out, s.Warn.Err()
}

type sheetBuilder struct {
	s      *Session
	ref    sheetRef
	shared []string
	styles *cellStyles
	rows   [][]string
}

func buildSheet(s *Session, ref sheetRef, shared []string, styles *cellStyles) (*doctree.Unit, error) {
	data, err := s.read(ref.part)
	if err != nil || data == nil {
		return nil, err
	}
	b := &sheetBuilder{s: s, ref: ref, shared: shared, styles: styles}
	drawings, err := b.cells(data)
	if err != nil {
		return nil, err
	}

	unit := &doctree.Unit{Name: ref.part}
	if len(b.rows) > 0 {
		tbl := &doctree.Table{}
		for _, r := range b.rows {
			row := doctree.Row{Cells: make([]doctree.Cell, len(r))}
			for i, v := range r {
				if v != "" {
					row.Cells[i] = doctree.Cell{Runs: []doctree.Run{{Text: v}}}
				}
			}
			tbl.Rows = append(tbl.Rows, row)
		}
		unit.Append(tbl)
	}

	sheetRels, err := rels.Load(s.Pkg, ref.part, s.Warn)
	if err != nil {
		return nil, err
	}
	if len(drawings) > 0 {
		for _, id := range drawings {
			r, ok := sheetRels.Lookup(id)
			if !ok {
				s.Warn.Add(warn.SkippedElement, ref.part, "drawing relationship '%s' not found", id)
				continue
			}
			if err := sheetDrawing(s, rels.ResolveTarget(ref.part, r.Target), unit); err != nil {
				return nil, err
			}
		}
	}
	if err := s.Warn.Err(); err != nil {
		return nil, err
	}
	if len(unit.Nodes) == 0 {
		return nil, nil
	}
	unit.Nodes = append([]doctree.Node{&doctree.Heading{Level: 2, Text: ref.name}}, unit.Nodes...)
	return unit, nil
}

// cells reads sheetData into rows of cell text and returns the drawing
// relationship ids referenced by the sheet.
func (b *sheetBuilder) cells(data []byte) ([]string, error) {
	st := b.s.stream(b.ref.part, data)
	var (
		drawings []string
		row      []string
		inRow    bool
		col      int
		cellRef  string
		cellType string
		style    string
		value    strings.Builder
		inline   strings.Builder
		inV      bool
		inIS     bool
		inT      bool
	)
	for {
		ev, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.s.xmlError(b.ref.part, "worksheet", err)
			break
		}
		switch {
		case ev.IsOpen("row"):
			inRow, row, col = true, nil, 0
		case ev.IsClose("row"):
			inRow = false
			b.addRow(row)
		case ev.IsOpen("c") && inRow:
			cellRef = ev.AttrOr("r", "")
			cellType = ev.AttrOr("t", "n")
			style = ev.AttrOr("s", "")
			if c, ok := columnIndex(cellRef); ok {
				col = c
			}
			value.Reset()
			inline.Reset()
		case ev.IsClose("c") && inRow:
			text := b.cellText(cellRef, cellType, style, value.String(), inline.String())
			if text != "" && col < maxColumns {
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = text
			}
			col++
		case ev.IsOpen("v"):
			inV = true
		case ev.IsClose("v"):
			inV = false
		case ev.IsOpen("is"):
			inIS = true
		case ev.IsClose("is"):
			inIS = false
		case ev.IsOpen("t"):
			inT = inIS
		case ev.IsClose("t"):
			inT = false
		case ev.Kind == xmlstream.Text:
			if inV {
				value.WriteString(ev.Text)
			} else if inT {
				inline.WriteString(ev.Text)
			}
		case ev.IsOpen("drawing"):
			if id, ok := ev.RelAttr("id"); ok {
				drawings = append(drawings, id)
			}
		}
		if err := b.s.Warn.Err(); err != nil {
			return nil, err
		}
	}
	return drawings, b.s.Warn.Err()
}

func (b *sheetBuilder) cellText(ref, typ, style, v, inline string) string {
	loc := b.ref.name + "!" + ref
	switch typ {
	case "s":
		if v == "" {
			return ""
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || i < 0 || i >= len(b.shared) {
			b.s.Warn.Add(warn.MalformedSegment, loc, "shared string index %q out of range", v)
			return ""
		}
		return b.shared[i]
	case "inlineStr":
		return inline
	case "b":
		switch strings.TrimSpace(v) {
		case "1":
			return "TRUE"
		case "0":
			return "FALSE"
		}
		return v
	case "e":
		b.s.Warn.Add(warn.MalformedSegment, loc, "cell error value %s", v)
		return v
	case "n":
		if v != "" && b.styles.isDate(style) {
			if d, ok := formatSerial(v, b.styles.date1904); ok {
				return d
			}
		}
	}
	return v
}

func (b *sheetBuilder) addRow(row []string) {
	empty := true
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			empty = false
			break
		}
	}
	if empty {
		return
	}
	b.rows = append(b.rows, row)
}

// columnIndex converts the letters of an A1 reference to a 0-based column.
func columnIndex(ref string) (int, bool) {
	n := 0
	i := 0
	for ; i < len(ref); i++ {
		c := ref[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			break
		}
		n = n*26 + int(c-'A'+1)
		if n > maxColumns {
			return 0, false
		}
	}
	if i == 0 {
		return 0, false
	}
	return n - 1, true
}

// sheetDrawing collects the pictures anchored in a spreadsheet drawing part.
func sheetDrawing(s *Session, part string, u *doctree.Unit) error {
	if !s.Pkg.Has(part) {
		s.Warn.Add(warn.SkippedElement, part, "drawing part not found")
		return s.Warn.Err()
	}
	data, err := s.read(part)
	if err != nil || data == nil {
		return err
	}
	drawingRels, err := rels.Load(s.Pkg, part, s.Warn)
	if err != nil {
		return err
	}
	d := &dml{s: s, part: part, rels: drawingRels}
	d.st = s.stream(part, data)
	for {
		ev, err := d.st.Next()
		if err == io.EOF {
			return s.Warn.Err()
		}
		if err != nil {
			s.xmlError(part, "drawing", err)
			return s.Warn.Err()
		}
		if !ev.IsOpen("pic") {
			continue
		}
		img, err := d.picture(ev)
		if err != nil {
			if isXMLError(err) {
				s.xmlError(part, "drawing", err)
				return s.Warn.Err()
			}
			return err
		}
		if img != nil {
			u.Append(img)
		}
	}
}
