// Package parser builds a doctree.Document from an opened OOXML package in a
// single streaming pass per XML part. Element-level faults become warnings;
// only container-level faults and strict-mode escalations abort a build.
package parser

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported package format")
	ErrMissingPart       = errors.New("main document part missing")
)

// Relationship type suffixes.
const (
	relOfficeDocument = "/officeDocument"
	relCoreProps      = "/core-properties"
	relHyperlink      = "/hyperlink"
	relImage          = "/image"
	relNotesSlide     = "/notesSlide"
	relStyles         = "/styles"
	relNumbering      = "/numbering"
	relSharedStrings  = "/sharedStrings"
	relDrawing        = "/drawing"
)

// Parser converts an opened package into a document model.
type Parser interface {
	Parse(s *Session) (*doctree.Document, error)
}

// For returns the builder for a format.
func For(f doctree.Format) (Parser, error) {
	switch f {
	case doctree.DOCX:
		return &DOCXParser{}, nil
	case doctree.PPTX:
		return &PPTXParser{}, nil
	case doctree.XLSX:
		return &XLSXParser{}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", f)
	}
}

// Session is the per-conversion state a builder works against. It is owned by
// one call and never shared.
type Session struct {
	Pkg    *container.Package
	Warn   *warn.Collector
	Images *ImageCollector
	XML    xmlstream.Options
	Log    *slog.Logger
}

// NewSession wires a session around pkg. A nil images collector collects
// placeholders without fetching bytes.
func NewSession(pkg *container.Package, w *warn.Collector, images *ImageCollector, log *slog.Logger) *Session {
	if images == nil {
		images = NewImageCollector(pkg, w, false, 0)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{Pkg: pkg, Warn: w, Images: images, Log: log}
}

// read returns the bytes of an entry. A blown uncompressed budget is fatal;
// other read failures become a warning and a nil result.
func (s *Session) read(name string) ([]byte, error) {
	data, err := s.Pkg.ReadEntry(name)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, container.ErrResourceLimitExceeded) {
		return nil, err
	}
	if errors.Is(err, container.ErrEntryNotFound) {
		s.Warn.Add(warn.SkippedElement, name, "part not found in package")
	} else {
		s.Warn.Add(warn.MalformedSegment, name, "unreadable part: %v", err)
	}
	return nil, nil
}

// readOptional is read without a warning for absent parts.
func (s *Session) readOptional(name string) ([]byte, error) {
	if name == "" || !s.Pkg.Has(name) {
		return nil, nil
	}
	return s.read(name)
}

// stream opens an XML stream over data and reports replaced bytes.
func (s *Session) stream(name string, data []byte) *xmlstream.Stream {
	st := xmlstream.New(data, s.XML)
	if st.Replaced() {
		s.Warn.Add(warn.MalformedSegment, name, "invalid UTF-8 replaced with U+FFFD")
	}
	return st
}

// xmlError records a parse failure that ends processing of a part.
func (s *Session) xmlError(name, what string, err error) {
	if errors.Is(err, xmlstream.ErrTooDeep) {
		s.Warn.Add(warn.ResourceLimitReached, name, "%s: %v", what, err)
		return
	}
	s.Warn.Add(warn.MalformedSegment, name, "XML parse error in %s: %v", what, err)
}

// mainPart finds the office document part via the package root relationships.
func mainPart(pkg *container.Package, fallback string) (string, error) {
	root, err := rels.Load(pkg, "", nil)
	if err != nil {
		return "", err
	}
	for _, r := range root.ByType(relOfficeDocument) {
		if p := rels.ResolveTarget("", r.Target); pkg.Has(p) {
			return p, nil
		}
	}
	return fallback, nil
}

// partByType resolves the first relationship of a type from owner's manifest.
func partByType(m rels.Map, owner, suffix, fallback string) string {
	for _, r := range m.ByType(suffix) {
		if !r.External {
			return rels.ResolveTarget(owner, r.Target)
		}
	}
	return fallback
}

func boolAttr(v string, present bool) bool {
	if !present {
		return false
	}
	switch v {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

// onOff reads a WordprocessingML toggle element such as <w:b/> or <w:i w:val="0"/>.
func onOff(ev xmlstream.Event) bool {
	v, ok := ev.Attr("val")
	return !ok || boolAttr(v, true)
}
