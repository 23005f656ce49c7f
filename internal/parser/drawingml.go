package parser

import (
	"strconv"
	"strings"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

// dml reads DrawingML content (shapes, text bodies, tables, pictures) from
// one part. It is shared by slides, notes and spreadsheet drawings.
type dml struct {
	s      *Session
	part   string
	rels   rels.Map
	st     *xmlstream.Stream
	tables int
}

type bulletKind int

const (
	bulletInherit bulletKind = iota
	bulletChar
	bulletAuto
	bulletNone
)

type dmlPara struct {
	lvl    int
	bullet bulletKind
	runs   []doctree.Run
}

func (p *dmlPara) text() string { return strings.TrimSpace(doctree.PlainText(p.runs)) }

// node converts a body paragraph into a list item or paragraph.
func (p *dmlPara) node() doctree.Node {
	switch {
	case p.bullet == bulletAuto:
		return &doctree.ListItem{Ordered: true, Depth: p.lvl, Runs: p.runs}
	case p.bullet == bulletChar, p.lvl > 0 && p.bullet != bulletNone:
		return &doctree.ListItem{Depth: p.lvl, Runs: p.runs}
	}
	return &doctree.Paragraph{Runs: p.runs}
}

// paragraph consumes an a:p element.
func (d *dml) paragraph(open xmlstream.Event) (*dmlPara, error) {
	p := &dmlPara{}
	var cur doctree.Run
	inText, inRPr := false, 0
	for {
		ev, err := d.st.Next()
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
			case ev.Depth == inRPr:
				inRPr = 0
			case ev.Name.Local == "t":
				inText = false
			}
			continue
		}
		switch ev.Name.Local {
		case "pPr":
			if n, err := strconv.Atoi(ev.AttrOr("lvl", "0")); err == nil && n > 0 {
				p.lvl = n
			}
		case "buAutoNum":
			p.bullet = bulletAuto
		case "buChar", "buBlip":
			p.bullet = bulletChar
		case "buNone":
			p.bullet = bulletNone
		case "r", "fld":
			cur = doctree.Run{}
		case "rPr":
			inRPr = ev.Depth
			b, ok := ev.Attr("b")
			cur.Bold = boolAttr(b, ok)
			i, ok := ev.Attr("i")
			cur.Italic = boolAttr(i, ok)
		case "hlinkClick":
			if inRPr > 0 {
				cur.Link = d.link(ev)
			}
		case "t":
			inText = true
		case "br":
			p.runs = append(p.runs, doctree.Run{Text: "\n"})
		}
	}
}

func (d *dml) link(ev xmlstream.Event) string {
	id, ok := ev.RelAttr("id")
	if !ok || id == "" {
		return ""
	}
	r, found := d.rels.Lookup(id)
	if !found {
		d.s.Warn.Add(warn.SkippedElement, d.part, "hyperlink relationship '%s' not found in rels", id)
		return ""
	}
	return r.Target
}

// shape consumes a p:sp (or xdr:sp) and returns its placeholder type, whether
// it is a placeholder at all, and its paragraphs.
func (d *dml) shape(open xmlstream.Event) (phType string, isPh bool, paras []*dmlPara, err error) {
	for {
		ev, err := d.st.Next()
		if err != nil {
			return "", false, nil, err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return phType, isPh, paras, nil
		}
		switch {
		case ev.IsOpen("ph"):
			isPh = true
			phType = ev.AttrOr("type", "body")
		case ev.IsOpen("p"):
			p, err := d.paragraph(ev)
			if err != nil {
				return "", false, nil, err
			}
			paras = append(paras, p)
		}
	}
}

// picture consumes a p:pic / xdr:pic element and collects its image.
func (d *dml) picture(open xmlstream.Event) (*doctree.Image, error) {
	alt, relID := "", ""
	for {
		ev, err := d.st.Next()
		if err != nil {
			return nil, err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			break
		}
		switch {
		case ev.IsOpen("cNvPr"):
			alt = ev.AttrOr("descr", "")
			if alt == "" {
				alt = ev.AttrOr("title", "")
			}
		case ev.IsOpen("blip"):
			if id, ok := ev.RelAttr("embed"); ok {
				relID = id
			} else if id, ok := ev.RelAttr("link"); ok {
				relID = id
			}
		}
	}
	if relID == "" {
		d.s.Warn.Add(warn.SkippedElement, d.part, "picture without image reference")
		return nil, nil
	}
	return d.s.Images.Collect(d.rels, d.part, relID, alt, d.part)
}

// graphicFrame consumes a graphic frame and appends any table it holds.
// stop reports that the part could not be recovered after an XML error.
func (d *dml) graphicFrame(open xmlstream.Event, u *doctree.Unit) (stop bool, err error) {
	for {
		ev, err := d.st.Next()
		if err != nil {
			d.s.xmlError(d.part, "graphic frame", err)
			return true, d.s.Warn.Err()
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return false, nil
		}
		switch {
		case ev.IsOpen("tbl"):
			if stop, err := d.table(ev, u); err != nil || stop {
				return stop, err
			}
		case ev.IsOpen("graphicData"):
			uri := ev.AttrOr("uri", "")
			switch {
			case strings.HasSuffix(uri, "/chart"):
				d.s.Warn.Add(warn.UnsupportedFeature, d.part, "chart omitted")
			case strings.HasSuffix(uri, "/diagram"):
				d.s.Warn.Add(warn.UnsupportedFeature, d.part, "diagram omitted")
			}
		}
	}
}

// table consumes an a:tbl, recovering past it on XML damage.
func (d *dml) table(open xmlstream.Event, u *doctree.Unit) (stop bool, err error) {
	d.tables++
	loc := d.part + "#table[" + strconv.Itoa(d.tables) + "]"
	at := d.st.Offset()
	tbl, skipped, corrupt, err := d.readTable(open)
	if err != nil {
		if d.st.Recover("tbl", open.Depth, at) {
			d.s.Warn.Add(warn.MalformedSegment, loc, "malformed table omitted: %v", err)
			return false, d.s.Warn.Err()
		}
		d.s.xmlError(d.part, "table", err)
		return true, d.s.Warn.Err()
	}
	return false, addTable(d.s.Warn, u, loc, tbl, skipped, corrupt)
}

func (d *dml) readTable(open xmlstream.Event) (*doctree.Table, int, string, error) {
	tbl := &doctree.Table{}
	var row *doctree.Row
	var cell *doctree.Cell
	skipped, corrupt := 0, ""
	for {
		ev, err := d.st.Next()
		if err != nil {
			return nil, 0, "", err
		}
		if ev.Kind == xmlstream.Close && ev.Depth == open.Depth {
			return tbl, skipped, corrupt, nil
		}
		switch {
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
			if row == nil {
				if corrupt == "" {
					corrupt = "cell outside a row"
				}
				if err := d.st.Skip(); err != nil {
					return nil, 0, "", err
				}
				continue
			}
			cell = &doctree.Cell{}
			h, hok := ev.Attr("hMerge")
			v, vok := ev.Attr("vMerge")
			if boolAttr(h, hok) || boolAttr(v, vok) {
				// Merged continuation cells keep their column but carry no text.
				if err := d.st.Skip(); err != nil {
					return nil, 0, "", err
				}
				row.Cells = append(row.Cells, *cell)
				cell = nil
			}
		case ev.IsClose("tc"):
			if cell != nil && row != nil {
				row.Cells = append(row.Cells, *cell)
			}
			cell = nil
		case ev.IsOpen("p"):
			p, err := d.paragraph(ev)
			if err != nil {
				return nil, 0, "", err
			}
			if cell == nil {
				if p.text() != "" && corrupt == "" {
					corrupt = "text outside a cell"
				}
				continue
			}
			if p.text() == "" {
				continue
			}
			if len(cell.Runs) > 0 {
				cell.Runs = append(cell.Runs, doctree.Run{Text: "\n"})
			}
			cell.Runs = append(cell.Runs, p.runs...)
		}
	}
}
