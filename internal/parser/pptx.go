package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
)

// PPTXParser builds documents from PresentationML packages. Every slide is a
// unit headed "Slide N" or "Slide N: <title>".
type PPTXParser struct{}

func (p *PPTXParser) Parse(s *Session) (*doctree.Document, error) {
	pres, err := mainPart(s.Pkg, "ppt/presentation.xml")
	if err != nil {
		return nil, err
	}
	if !s.Pkg.Has(pres) {
		return nil, errors.Wrapf(ErrMissingPart, "%s", pres)
	}
	presRels, err := rels.Load(s.Pkg, pres, s.Warn)
	if err != nil {
		return nil, err
	}
	ids, err := slideIDs(s, pres)
	if err != nil {
		return nil, err
	}

	doc := &doctree.Document{Format: doctree.PPTX, Ruled: true}
	firstTitle := ""
	for i, rid := range ids {
		n := i + 1
		r, ok := presRels.Lookup(rid)
		if !ok {
			s.Warn.Add(warn.SkippedElement, pres, "slide relationship '%s' not found", rid)
			if err := s.Warn.Err(); err != nil {
				return nil, err
			}
			continue
		}
		part := rels.ResolveTarget(pres, r.Target)
		if !s.Pkg.Has(part) {
			s.Warn.Add(warn.SkippedElement, part, "slide file not found")
			if err := s.Warn.Err(); err != nil {
				return nil, err
			}
			continue
		}
		unit, title, err := buildSlide(s, part, n)
		if err != nil {
			return nil, err
		}
		if firstTitle == "" {
			firstTitle = title
		}
		doc.Units = append(doc.Units, unit)
	}

	title, err := coreTitle(s)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = firstTitle
	}
	doc.Title = title
	s.Log.Debug("pptx built", "slides", len(doc.Units))
	return doc, s.Warn.Err()
}

// slideIDs returns the r:id of every p:sldId in presentation order.
func slideIDs(s *Session, pres string) ([]string, error) {
	data, err := s.read(pres)
	if err != nil || data == nil {
		return nil, err
	}
	st := s.stream(pres, data)
	var ids []string
	for {
		ev, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.xmlError(pres, "presentation", err)
			break
		}
		if ev.IsOpen("sldId") {
			if id, ok := ev.RelAttr("id"); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, s.Warn.Err()
}

// buildSlide parses one slide and its notes. XML damage keeps whatever was
// parsed before it.
func buildSlide(s *Session, part string, n int) (*doctree.Unit, string, error) {
	slideRels, err := rels.Load(s.Pkg, part, s.Warn)
	if err != nil {
		return nil, "", err
	}
	d := &dml{s: s, part: part, rels: slideRels}
	body := &doctree.Unit{Name: part}
	title := ""

	data, err := s.read(part)
	if err != nil {
		return nil, "", err
	}
	if data != nil {
		title, err = d.slideBody(data, body)
		if err != nil {
			return nil, "", err
		}
	}

	heading := fmt.Sprintf("Slide %d", n)
	if title != "" {
		heading += ": " + title
	}
	unit := &doctree.Unit{Name: part}
	unit.Append(&doctree.Heading{Level: 2, Text: heading})
	unit.Append(body.Nodes...)

	note, err := slideNotes(s, part, d.rels)
	if err != nil {
		return nil, "", err
	}
	if note != nil {
		unit.Append(note)
	}
	return unit, title, s.Warn.Err()
}

func isTitle(phType string) bool { return phType == "title" || phType == "ctrTitle" }

func (d *dml) slideBody(data []byte, u *doctree.Unit) (string, error) {
	d.st = d.s.stream(d.part, data)
	title := ""
	for {
		ev, err := d.st.Next()
		if err == io.EOF {
			return title, nil
		}
		if err != nil {
			d.s.xmlError(d.part, "slide", err)
			return title, d.s.Warn.Err()
		}
		switch {
		case ev.IsOpen("sp"):
			phType, isPh, paras, err := d.shape(ev)
			if err != nil {
				d.s.xmlError(d.part, "slide", err)
				return title, d.s.Warn.Err()
			}
			if isPh && isTitle(phType) {
				var parts []string
				for _, p := range paras {
					if t := p.text(); t != "" {
						parts = append(parts, t)
					}
				}
				if title == "" {
					title = strings.Join(parts, " ")
					continue
				}
			}
			for _, p := range paras {
				if p.text() != "" {
					u.Append(p.node())
				}
			}
		case ev.IsOpen("pic"):
			img, err := d.picture(ev)
			if err != nil {
				if isXMLError(err) {
					d.s.xmlError(d.part, "slide", err)
					return title, d.s.Warn.Err()
				}
				return title, err
			}
			if img != nil {
				u.Append(img)
			}
		case ev.IsOpen("graphicFrame"):
			stop, err := d.graphicFrame(ev, u)
			if err != nil || stop {
				return title, err
			}
		}
		if err := d.s.Warn.Err(); err != nil {
			return title, err
		}
	}
}

// slideNotes returns the speaker notes of a slide, if it has any.
func slideNotes(s *Session, slide string, slideRels rels.Map) (*doctree.Note, error) {
	refs := slideRels.ByType(relNotesSlide)
	if len(refs) == 0 {
		return nil, nil
	}
	part := rels.ResolveTarget(slide, refs[0].Target)
	if !s.Pkg.Has(part) {
		s.Warn.Add(warn.SkippedElement, part, "notes slide not found")
		return nil, s.Warn.Err()
	}
	data, err := s.read(part)
	if err != nil || data == nil {
		return nil, err
	}
	notesRels, err := rels.Load(s.Pkg, part, s.Warn)
	if err != nil {
		return nil, err
	}
	d := &dml{s: s, part: part, rels: notesRels}
	d.st = s.stream(part, data)

	var runs []doctree.Run
	for {
		ev, err := d.st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.xmlError(part, "notes", err)
			break
		}
		if !ev.IsOpen("sp") {
			continue
		}
		phType, isPh, paras, err := d.shape(ev)
		if err != nil {
			s.xmlError(part, "notes", err)
			break
		}
		if !isPh || phType != "body" {
			continue
		}
		for _, p := range paras {
			if p.text() == "" {
				continue
			}
			if len(runs) > 0 {
				runs = append(runs, doctree.Run{Text: "\n"})
			}
			runs = append(runs, p.runs...)
		}
	}
	if err := s.Warn.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &doctree.Note{Runs: runs}, nil
}
