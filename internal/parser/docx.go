package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

// DOCXParser builds documents from WordprocessingML packages.
type DOCXParser struct{}

func (p *DOCXParser) Parse(s *Session) (*doctree.Document, error) {
	part, err := mainPart(s.Pkg, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if !s.Pkg.Has(part) {
		return nil, errors.Wrapf(ErrMissingPart, "%s", part)
	}
	docRels, err := rels.Load(s.Pkg, part, s.Warn)
	if err != nil {
		return nil, err
	}
	b := &docxBuilder{
		s:      s,
		part:   part,
		rels:   docRels,
		styles: map[string]int{},
		badNum: map[string]bool{},
		unit:   &doctree.Unit{Name: part},
	}
	if err := b.loadStyles(partByType(b.rels, part, relStyles, "word/styles.xml")); err != nil {
		return nil, err
	}
	if err := b.loadNumbering(partByType(b.rels, part, relNumbering, "word/numbering.xml")); err != nil {
		return nil, err
	}

	doc := &doctree.Document{Format: doctree.DOCX, Units: []*doctree.Unit{b.unit}}
	data, err := s.read(part)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := b.body(data); err != nil {
			return nil, err
		}
	}

	title, err := coreTitle(s)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = b.firstH1
	}
	doc.Title = title
	s.Log.Debug("docx built", "nodes", len(b.unit.Nodes), "tables", b.tables)
	return doc, s.Warn.Err()
}

type docxBuilder struct {
	s       *Session
	part    string
	rels    rels.Map
	styles  map[string]int // styleId -> heading level
	numbers numbering
	badNum  map[string]bool
	unit    *doctree.Unit
	st      *xmlstream.Stream
	tables  int
	firstH1 string
}

func isXMLError(err error) bool {
	var se *xmlstream.SyntaxError
	return errors.As(err, &se) || errors.Is(err, xmlstream.ErrTooDeep)
}

func (b *docxBuilder) body(data []byte) error {
	b.st = b.s.stream(b.part, data)
	for {
		ev, err := b.st.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			b.s.xmlError(b.part, "document", err)
			return b.s.Warn.Err()
		}
		switch {
		case ev.IsOpen("p"):
			para, err := b.paragraph(ev)
			if err != nil {
				b.s.xmlError(b.part, "document", err)
				return b.s.Warn.Err()
			}
			if err := b.emit(para); err != nil {
				return err
			}
		case ev.IsOpen("tbl"):
			stop, err := b.table(ev)
			if err != nil || stop {
				return err
			}
		case ev.IsOpen("del"), ev.IsOpen("sectPr"), ev.IsOpen("moveFrom"):
			if err := b.st.Skip(); err != nil {
				b.s.xmlError(b.part, "document", err)
				return b.s.Warn.Err()
			}
		}
		if err := b.s.Warn.Err(); err != nil {
			return err
		}
	}
}

type imageRef struct {
	relID string
	alt   string
}

type docxPara struct {
	style   string
	outline int
	numID   string
	ilvl    int
	runs    []doctree.Run
	images  []imageRef
}

// paragraph consumes a w:p element. Only XML errors are returned.
func (b *docxBuilder) paragraph(open xmlstream.Event) (*docxPara, error) {
	p := &docxPara{outline: -1}
	var (
		cur       doctree.Run
		link      string
		linkDepth int
		pPrDepth  int
		rPrDepth  int
		inRun     bool
		inText    bool
	)
	for {
		ev, err := b.st.Next()
		if err != nil {
			return nil, err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return p, nil
		}
		switch ev.Kind {
		case xmlstream.Text:
			if inText {
				p.runs = append(p.runs, doctree.Run{Text: ev.Text, Bold: cur.Bold, Italic: cur.Italic, Link: cur.Link})
			}
			continue
		case xmlstream.Close:
			switch {
			case ev.Depth == pPrDepth:
				pPrDepth = 0
			case ev.Depth == rPrDepth:
				rPrDepth = 0
			case ev.Depth == linkDepth:
				link, linkDepth = "", 0
			case ev.Name.Local == "r":
				inRun = false
			case ev.Name.Local == "t":
				inText = false
			}
			continue
		}

		local := ev.Name.Local
		switch {
		case pPrDepth > 0:
			switch local {
			case "pStyle":
				p.style = ev.AttrOr("val", "")
			case "outlineLvl":
				if n, err := strconv.Atoi(ev.AttrOr("val", "")); err == nil {
					p.outline = n
				}
			case "ilvl":
				p.ilvl, _ = strconv.Atoi(ev.AttrOr("val", "0"))
			case "numId":
				p.numID = ev.AttrOr("val", "")
			}
		case local == "pPr":
			pPrDepth = ev.Depth
		case local == "hyperlink":
			link, linkDepth = b.hyperlink(ev), ev.Depth
		case local == "r":
			inRun = true
			cur = doctree.Run{Link: link}
		case local == "rPr" && inRun:
			rPrDepth = ev.Depth
		case rPrDepth > 0:
			switch local {
			case "b":
				cur.Bold = onOff(ev)
			case "i":
				cur.Italic = onOff(ev)
			}
		case local == "t":
			inText = true
		case (local == "tab" || local == "ptab") && inRun:
			p.runs = append(p.runs, doctree.Run{Text: "\t", Bold: cur.Bold, Italic: cur.Italic, Link: cur.Link})
		case (local == "br" || local == "cr") && inRun:
			p.runs = append(p.runs, doctree.Run{Text: "\n", Bold: cur.Bold, Italic: cur.Italic, Link: cur.Link})
		case local == "drawing" || local == "pict" || local == "object":
			refs, err := b.drawing(ev)
			if err != nil {
				return nil, err
			}
			p.images = append(p.images, refs...)
		case local == "del" || local == "delText" || local == "instrText" || local == "moveFrom":
			if err := b.st.Skip(); err != nil {
				return nil, err
			}
		}
	}
}

func (b *docxBuilder) hyperlink(ev xmlstream.Event) string {
	if id, ok := ev.RelAttr("id"); ok && id != "" {
		r, found := b.rels.Lookup(id)
		if !found {
			b.s.Warn.Add(warn.SkippedElement, b.part, "hyperlink relationship '%s' not found in rels", id)
			return ""
		}
		target := r.Target
		if anchor := ev.AttrOr("anchor", ""); anchor != "" {
			target += "#" + anchor
		}
		return target
	}
	if anchor := ev.AttrOr("anchor", ""); anchor != "" {
		return "#" + anchor
	}
	return ""
}

// drawing consumes a w:drawing (DrawingML) or w:pict (VML) element and
// returns the images it references.
func (b *docxBuilder) drawing(open xmlstream.Event) ([]imageRef, error) {
	var refs []imageRef
	alt := ""
	for {
		ev, err := b.st.Next()
		if err != nil {
			return nil, err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return refs, nil
		}
		if ev.IsOpen("txbxContent") {
			b.s.Warn.Add(warn.UnsupportedFeature, b.part, "text box content omitted")
			if err := b.st.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		if ev.Kind != xmlstream.Open {
			continue
		}
		switch ev.Name.Local {
		case "docPr", "cNvPr":
			if d := ev.AttrOr("descr", ""); d != "" && alt == "" {
				alt = d
			} else if t := ev.AttrOr("title", ""); t != "" && alt == "" {
				alt = t
			}
		case "blip":
			if id, ok := ev.RelAttr("embed"); ok {
				refs = append(refs, imageRef{relID: id, alt: alt})
			} else if id, ok := ev.RelAttr("link"); ok {
				refs = append(refs, imageRef{relID: id, alt: alt})
			}
		case "imagedata":
			if id, ok := ev.RelAttr("id"); ok {
				refs = append(refs, imageRef{relID: id, alt: ev.AttrOr("title", alt)})
			}
		}
	}
}

func (b *docxBuilder) emit(p *docxPara) error {
	text := strings.TrimSpace(doctree.PlainText(p.runs))
	switch level := b.headingLevel(p); {
	case level > 0:
		if text != "" {
			b.unit.Append(&doctree.Heading{Level: level, Text: text})
			if level == 1 && b.firstH1 == "" {
				b.firstH1 = text
			}
		}
	case p.numID != "" && p.numID != "0":
		if text != "" {
			b.unit.Append(&doctree.ListItem{Ordered: b.ordered(p.numID, p.ilvl), Depth: p.ilvl, Runs: p.runs})
		}
	default:
		if text != "" {
			b.unit.Append(&doctree.Paragraph{Runs: p.runs})
		}
	}
	for _, ref := range p.images {
		img, err := b.s.Images.Collect(b.rels, b.part, ref.relID, ref.alt, b.part)
		if err != nil {
			return err
		}
		b.unit.Append(img)
	}
	return nil
}

func (b *docxBuilder) headingLevel(p *docxPara) int {
	if p.style != "" {
		if lvl, ok := b.styles[p.style]; ok && lvl > 0 {
			return lvl
		}
		if lvl := headingFromName(p.style); lvl > 0 {
			return lvl
		}
	}
	if p.outline >= 0 && p.outline < 9 {
		return p.outline + 1
	}
	return 0
}

// headingFromName maps "Heading3", "heading 3" and "Title" to a level.
func headingFromName(name string) int {
	n := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	if n == "title" {
		return 1
	}
	if rest, ok := strings.CutPrefix(n, "heading"); ok {
		if lvl, err := strconv.Atoi(rest); err == nil && lvl >= 1 && lvl <= 9 {
			return lvl
		}
	}
	return 0
}

type docxStyle struct {
	name    string
	basedOn string
	outline int
}

func (b *docxBuilder) loadStyles(name string) error {
	data, err := b.s.readOptional(name)
	if err != nil || data == nil {
		return err
	}
	st := b.s.stream(name, data)
	all := map[string]*docxStyle{}
	var cur *docxStyle
	var curID string
	for {
		ev, err := st.Next()
		if err != nil {
			if err != io.EOF {
				b.s.xmlError(name, "styles", err)
			}
			break
		}
		if ev.Kind != xmlstream.Open {
			if ev.IsClose("style") {
				cur = nil
			}
			continue
		}
		switch ev.Name.Local {
		case "style":
			curID = ev.AttrOr("styleId", "")
			cur = &docxStyle{outline: -1}
			if curID != "" {
				all[curID] = cur
			}
		case "name":
			if cur != nil {
				cur.name = ev.AttrOr("val", "")
			}
		case "basedOn":
			if cur != nil {
				cur.basedOn = ev.AttrOr("val", "")
			}
		case "outlineLvl":
			if cur != nil {
				if n, err := strconv.Atoi(ev.AttrOr("val", "")); err == nil {
					cur.outline = n
				}
			}
		}
	}

	var level func(id string, hops int) int
	level = func(id string, hops int) int {
		s, ok := all[id]
		if !ok || hops > 10 {
			return 0
		}
		if lvl := headingFromName(s.name); lvl > 0 {
			return lvl
		}
		if lvl := headingFromName(id); lvl > 0 {
			return lvl
		}
		if s.outline >= 0 && s.outline < 9 {
			return s.outline + 1
		}
		if s.basedOn != "" {
			return level(s.basedOn, hops+1)
		}
		return 0
	}
	for id := range all {
		if lvl := level(id, 0); lvl > 0 {
			b.styles[id] = lvl
		}
	}
	return b.s.Warn.Err()
}

// numbering maps w:numId to the number formats of its abstract definition.
type numbering struct {
	nums     map[string]string         // numId -> abstractNumId
	abstract map[string]map[int]string // abstractNumId -> ilvl -> numFmt
}

func (b *docxBuilder) loadNumbering(name string) error {
	b.numbers = numbering{nums: map[string]string{}, abstract: map[string]map[int]string{}}
	data, err := b.s.readOptional(name)
	if err != nil || data == nil {
		return err
	}
	st := b.s.stream(name, data)
	var absID, numID string
	lvl := -1
	for {
		ev, err := st.Next()
		if err != nil {
			if err != io.EOF {
				b.s.xmlError(name, "numbering", err)
			}
			break
		}
		if ev.Kind == xmlstream.Close {
			switch ev.Name.Local {
			case "abstractNum":
				absID = ""
			case "num":
				numID = ""
			case "lvl":
				lvl = -1
			}
			continue
		}
		if ev.Kind != xmlstream.Open {
			continue
		}
		switch ev.Name.Local {
		case "abstractNum":
			absID = ev.AttrOr("abstractNumId", "")
			if b.numbers.abstract[absID] == nil {
				b.numbers.abstract[absID] = map[int]string{}
			}
		case "lvl":
			lvl, _ = strconv.Atoi(ev.AttrOr("ilvl", "0"))
		case "numFmt":
			if absID != "" && lvl >= 0 {
				b.numbers.abstract[absID][lvl] = ev.AttrOr("val", "")
			}
		case "num":
			numID = ev.AttrOr("numId", "")
		case "abstractNumId":
			if numID != "" {
				b.numbers.nums[numID] = ev.AttrOr("val", "")
			}
		}
	}
	return b.s.Warn.Err()
}

// ordered resolves a list reference. Unresolvable references are treated as
// unordered with one warning per numId.
func (b *docxBuilder) ordered(numID string, ilvl int) bool {
	abs, ok := b.numbers.nums[numID]
	var lvls map[int]string
	if ok {
		lvls, ok = b.numbers.abstract[abs]
	}
	if !ok {
		if !b.badNum[numID] {
			b.badNum[numID] = true
			b.s.Warn.Add(warn.SkippedElement, b.part, "numbering definition %s not found; rendered as bullets", numID)
		}
		return false
	}
	f, ok := lvls[ilvl]
	if !ok {
		f = lvls[0]
	}
	switch f {
	case "", "bullet", "none":
		return false
	}
	return true
}

// table consumes a w:tbl. It reports stop when the rest of the part could
// not be recovered; err is fatal.
func (b *docxBuilder) table(open xmlstream.Event) (stop bool, err error) {
	b.tables++
	loc := fmt.Sprintf("%s#table[%d]", b.part, b.tables)
	at := b.st.Offset()
	tbl, skipped, corrupt, err := b.readTable(open)
	if err != nil {
		if !isXMLError(err) {
			return true, err
		}
		if b.st.Recover("tbl", open.Depth, at) {
			b.s.Warn.Add(warn.MalformedSegment, loc, "malformed table omitted: %v", err)
			return false, b.s.Warn.Err()
		}
		b.s.xmlError(b.part, "document", err)
		return true, b.s.Warn.Err()
	}
	return false, addTable(b.s.Warn, b.unit, loc, tbl, skipped, corrupt)
}

// addTable applies the table fault rules shared by all builders: a corrupt
// table is omitted, empty rows are dropped and a table left without rows is
// omitted. At most one warning is recorded per table.
func addTable(w *warn.Collector, u *doctree.Unit, loc string, tbl *doctree.Table, skipped int, corrupt string) error {
	switch {
	case corrupt != "":
		w.Add(warn.MalformedSegment, loc, "malformed table omitted: %s", corrupt)
	case len(tbl.Rows) == 0:
		w.Add(warn.MalformedSegment, loc, "table has no rows; omitted")
	default:
		if skipped > 0 {
			w.Add(warn.MalformedSegment, loc, "skipped %d table row(s) without cells", skipped)
		}
		u.Append(tbl)
	}
	return w.Err()
}

// readTable consumes a table element. Structural problems are reported in
// corrupt; err is an XML error.
func (b *docxBuilder) readTable(open xmlstream.Event) (*doctree.Table, int, string, error) {
	tbl := &doctree.Table{}
	var row *doctree.Row
	skipped := 0
	corrupt := ""
	for {
		ev, err := b.st.Next()
		if err != nil {
			return nil, 0, "", err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return tbl, skipped, corrupt, nil
		}
		switch {
		case ev.Kind == xmlstream.Text:
			if strings.TrimSpace(ev.Text) != "" && corrupt == "" {
				corrupt = "text outside a cell"
			}
		case ev.IsOpen("tr"):
			row = &doctree.Row{}
		case ev.IsClose("tr"):
			if row != nil {
				if len(row.Cells) == 0 {
					skipped++
				} else {
					tbl.Rows = append(tbl.Rows, *row)
				}
			}
			row = nil
		case ev.IsOpen("tc"):
			runs, span, err := b.cell(ev)
			if err != nil {
				return nil, 0, "", err
			}
			if row == nil {
				if corrupt == "" {
					corrupt = "cell outside a row"
				}
				continue
			}
			row.Cells = append(row.Cells, doctree.Cell{Runs: runs})
			for i := 1; i < span; i++ {
				row.Cells = append(row.Cells, doctree.Cell{})
			}
		case ev.Kind == xmlstream.Open && (ev.Name.Local == "tblPr" || ev.Name.Local == "tblGrid" || ev.Name.Local == "trPr"):
			if err := b.st.Skip(); err != nil {
				return nil, 0, "", err
			}
		}
	}
}

// cell consumes a w:tc and returns its text as runs, paragraphs separated by
// newlines, plus its horizontal span.
func (b *docxBuilder) cell(open xmlstream.Event) ([]doctree.Run, int, error) {
	var runs []doctree.Run
	span := 1
	paras := 0
	for {
		ev, err := b.st.Next()
		if err != nil {
			return nil, 0, err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return runs, span, nil
		}
		switch {
		case ev.IsOpen("gridSpan"):
			if n, err := strconv.Atoi(ev.AttrOr("val", "1")); err == nil && n > 1 && n < 1000 {
				span = n
			}
		case ev.IsOpen("p"):
			p, err := b.paragraph(ev)
			if err != nil {
				return nil, 0, err
			}
			if len(p.images) > 0 {
				b.s.Warn.Add(warn.UnsupportedFeature, b.part, "%d image(s) inside a table cell omitted", len(p.images))
			}
			if strings.TrimSpace(doctree.PlainText(p.runs)) == "" {
				continue
			}
			if paras > 0 {
				runs = append(runs, doctree.Run{Text: "\n"})
			}
			runs = append(runs, p.runs...)
			paras++
		case ev.IsOpen("tbl"):
			inner, _, _, err := b.readTable(ev)
			if err != nil {
				return nil, 0, err
			}
			if text := flatten(inner); text != "" {
				if paras > 0 {
					runs = append(runs, doctree.Run{Text: "\n"})
				}
				runs = append(runs, doctree.Run{Text: text})
				paras++
			}
		}
	}
}

// flatten renders a nested table as lines of space separated cell text.
func flatten(t *doctree.Table) string {
	var lines []string
	for _, r := range t.Rows {
		var cells []string
		for _, c := range r.Cells {
			if s := strings.TrimSpace(doctree.PlainText(c.Runs)); s != "" {
				cells = append(cells, s)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	return strings.Join(lines, "\n")
}
