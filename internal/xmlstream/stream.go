// Package xmlstream turns one XML part into a flat pull stream of open, text
// and close events with a bounded nesting depth.
package xmlstream

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxDepth bounds element nesting.
const DefaultMaxDepth = 256

// RelNamespace is the officeDocument relationships namespace used by r:id and r:embed.
const RelNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

var ErrTooDeep = errors.New("xml nesting too deep")

// SyntaxError reports malformed XML and where it was found.
type SyntaxError struct {
	Offset int64
	Err    error
}

func (e *SyntaxError) Error() string {
	return "xml syntax error at byte " + strconv.FormatInt(e.Offset, 10) + ": " + e.Err.Error()
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Kind identifies an event.
type Kind int

const (
	Open Kind = iota
	Text
	Close
)

// Event is one item of the stream. Depth is the element depth: 1 for the
// root's open and close events, and the enclosing element's depth for text.
type Event struct {
	Kind  Kind
	Name  xml.Name
	Attrs []xml.Attr
	Text  string
	Depth int
}

// Is reports whether e opens or closes an element with local name local.
func (e Event) Is(local string) bool {
	return e.Kind != Text && e.Name.Local == local
}

// IsOpen reports whether e opens an element named local.
func (e Event) IsOpen(local string) bool { return e.Kind == Open && e.Name.Local == local }

// IsClose reports whether e closes an element named local.
func (e Event) IsClose(local string) bool { return e.Kind == Close && e.Name.Local == local }

// Attr returns the first attribute with the given local name, ignoring namespace.
func (e Event) Attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or fallback.
func (e Event) AttrOr(local, fallback string) string {
	if v, ok := e.Attr(local); ok {
		return v
	}
	return fallback
}

// RelAttr returns a relationship-namespace attribute such as r:id or r:embed.
func (e Event) RelAttr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local && (a.Name.Space == RelNamespace || a.Name.Space == "r") {
			return a.Value, true
		}
	}
	return "", false
}

// Options configures a Stream.
type Options struct {
	MaxDepth int
}

// Stream is a pull parser over one XML document. Each New call starts over
// from the first byte, so the same part may be streamed more than once.
type Stream struct {
	data     []byte
	dec      *xml.Decoder
	origin   int64 // offset in data that dec's InputOffset 0 maps to
	depth    int
	open     []span // start tags of the currently open elements
	maxDepth int
	replaced bool
	err      error
	errAt    int64
}

// span is a byte range of data.
type span struct{ from, to int64 }

// New decodes data (UTF-8, or UTF-16 when a byte order mark says so) and
// returns a stream positioned before the first event.
func New(data []byte, opts Options) *Stream {
	s := &Stream{maxDepth: opts.MaxDepth}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxDepth
	}
	s.data, s.replaced = sanitize(data)
	s.reset(0, nil)
	return s
}

// reset restarts decoding at offset at. prefix is replayed first so the
// decoder knows the enclosing elements and their namespaces.
func (s *Stream) reset(at int64, prefix []byte) {
	s.origin = at - int64(len(prefix))
	var r io.Reader = bytes.NewReader(s.data[at:])
	if len(prefix) > 0 {
		r = io.MultiReader(bytes.NewReader(prefix), r)
	}
	s.dec = xml.NewDecoder(r)
	s.dec.Strict = true
	// Bytes are already UTF-8 here; declared encodings are informational.
	s.dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
}

// Offset returns the absolute byte offset of the decoder.
func (s *Stream) Offset() int64 { return s.origin + s.dec.InputOffset() }

// Replaced reports whether invalid byte sequences were replaced with U+FFFD.
func (s *Stream) Replaced() bool { return s.replaced }

// Next returns the next event, io.EOF at the end of the document, ErrTooDeep
// when nesting exceeds the limit, or a *SyntaxError. Errors are sticky.
func (s *Stream) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	for {
		start := s.Offset()
		tok, err := s.dec.Token()
		if err != nil {
			s.errAt = s.Offset()
			switch {
			case err == io.EOF && s.depth == 0:
				s.err = io.EOF
			case err == io.EOF:
				s.err = &SyntaxError{Offset: s.errAt, Err: io.ErrUnexpectedEOF}
			default:
				s.err = &SyntaxError{Offset: s.errAt, Err: err}
			}
			return Event{}, s.err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			s.depth++
			if s.depth > s.maxDepth {
				s.err = errors.Wrapf(ErrTooDeep, "depth %d at byte %d", s.depth, s.Offset())
				return Event{}, s.err
			}
			s.open = append(s.open, span{start, s.Offset()})
			return Event{Kind: Open, Name: t.Name, Attrs: t.Attr, Depth: s.depth}, nil
		case xml.EndElement:
			d := s.depth
			s.depth--
			if n := len(s.open); n > 0 {
				s.open = s.open[:n-1]
			}
			return Event{Kind: Close, Name: t.Name, Depth: d}, nil
		case xml.CharData:
			if s.depth == 0 {
				continue
			}
			return Event{Kind: Text, Text: string(t), Depth: s.depth}, nil
		}
	}
}

// Skip consumes events up to and including the close of the element whose
// open event was just returned.
func (s *Stream) Skip() error {
	target := s.depth
	for {
		ev, err := s.Next()
		if err != nil {
			return err
		}
		if ev.Kind == Close && ev.Depth == target {
			return nil
		}
	}
}

// Recover resumes a stream that failed inside an element named local, whose
// open event had the given depth and was returned when Offset was openedAt.
// Decoding restarts just past the close tag that balances that element,
// counting nested elements of the same name, and events continue at the
// depth of the element's parent. It reports false when the element is never
// closed.
func (s *Stream) Recover(local string, depth int, openedAt int64) bool {
	var se *SyntaxError
	if s.err == nil || !errors.As(s.err, &se) {
		return false
	}
	if depth < 1 || depth-1 > len(s.open) || openedAt < 0 || openedAt > int64(len(s.data)) {
		return false
	}
	end := closeOf(s.data[openedAt:], local)
	if end < 0 {
		return false
	}
	ancestors := s.open[:depth-1]
	var prefix []byte
	for _, sp := range ancestors {
		prefix = append(prefix, s.data[sp.from:sp.to]...)
	}
	s.reset(openedAt+int64(end), prefix)
	for range ancestors {
		if _, err := s.dec.Token(); err != nil {
			return false
		}
	}
	s.open = ancestors
	s.depth = depth - 1
	s.err = nil
	return true
}

// closeOf returns the index just past the close tag that balances an
// element named local whose open tag ends where data begins, or -1.
// Comments, CDATA sections and processing instructions are skipped.
func closeOf(data []byte, local string) int {
	open := 1
	for i := 0; i < len(data); i++ {
		if data[i] != '<' {
			continue
		}
		if skip := skipMarkup(data[i:]); skip != 0 {
			if skip < 0 {
				return -1
			}
			i += skip - 1
			continue
		}
		p := i + 1
		closing := p < len(data) && data[p] == '/'
		if closing {
			p++
		}
		q := p
		for q < len(data) && !isNameEnd(data[q]) {
			q++
		}
		name := data[p:q]
		if k := bytes.LastIndexByte(name, ':'); k >= 0 {
			name = name[k+1:]
		}
		if len(name) == 0 || string(name) != local {
			continue
		}
		gt := tagEnd(data, q)
		if gt < 0 {
			return -1
		}
		switch {
		case closing:
			open--
			if open == 0 {
				return gt + 1
			}
		case data[gt-1] != '/':
			open++
		}
		i = gt
	}
	return -1
}

var markup = []struct{ open, close string }{
	{"<!--", "-->"},
	{"<![CDATA[", "]]>"},
	{"<?", "?>"},
}

// skipMarkup returns the length of a comment, CDATA section or processing
// instruction at the start of b, 0 when b starts with none, or -1 when one
// is unterminated.
func skipMarkup(b []byte) int {
	for _, m := range markup {
		if !bytes.HasPrefix(b, []byte(m.open)) {
			continue
		}
		j := bytes.Index(b[len(m.open):], []byte(m.close))
		if j < 0 {
			return -1
		}
		return len(m.open) + j + len(m.close)
	}
	return 0
}

func isNameEnd(c byte) bool {
	return c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// tagEnd returns the index of the '>' ending the tag that continues at from,
// ignoring quoted attribute values, or -1.
func tagEnd(data []byte, from int) int {
	var quote byte
	for i := from; i < len(data); i++ {
		c := data[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// sanitize returns UTF-8 bytes. A UTF-16 BOM triggers transcoding; a UTF-8
// BOM is dropped; invalid UTF-8 is replaced with U+FFFD.
func sanitize(data []byte) ([]byte, bool) {
	if len(data) >= 2 && ((data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)) {
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err == nil {
			return stripDecl(out), bytes.ContainsRune(out, utf8.RuneError)
		}
	}
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data, false
	}
	return bytes.ToValidUTF8(data, []byte("�")), true
}

// stripDecl drops an XML declaration after transcoding, since it may still
// name UTF-16.
func stripDecl(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("<?xml")) {
		return b
	}
	if i := bytes.Index(b, []byte("?>")); i >= 0 {
		return b[i+2:]
	}
	return b
}
