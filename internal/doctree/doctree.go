// Package doctree holds the format-neutral document model built from an
// OOXML package and consumed once by the Markdown renderer.
package doctree

// Format names the package flavour a document came from.
type Format string

const (
	DOCX Format = "docx"
	PPTX Format = "pptx"
	XLSX Format = "xlsx"
)

// Document is the root of the model. Units are the document body, slides or
// sheets, in reading order. Ruled documents get a thematic break between units.
type Document struct {
	Title  string
	Format Format
	Units  []*Unit
	Ruled  bool
}

// Unit is one top-level reading unit.
type Unit struct {
	Name  string // part or sheet name, for warnings
	Nodes []Node
}

// Append adds nodes to the unit.
func (u *Unit) Append(n ...Node) { u.Nodes = append(u.Nodes, n...) }

// Node is a block in a unit. The set of implementations is closed.
type Node interface {
	node()
}

// Run is a span of text with uniform styling. Link is the hyperlink target, if any.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Link   string
}

// SameStyle reports whether two runs can be merged.
func (r Run) SameStyle(o Run) bool {
	return r.Bold == o.Bold && r.Italic == o.Italic && r.Link == o.Link
}

// Heading is a section title. Level is the source level and may exceed 6.
type Heading struct {
	Level int
	Text  string
}

// Paragraph is body text.
type Paragraph struct {
	Runs []Run
}

// Table is a grid of cells. Rows may have different lengths.
type Table struct {
	Rows []Row
}

// Row is a table row.
type Row struct {
	Cells []Cell
}

// Cell is a table cell.
type Cell struct {
	Runs []Run
}

// ListItem is one entry of a list. Depth starts at 0.
type ListItem struct {
	Ordered bool
	Depth   int
	Runs    []Run
}

// Image is a placeholder for a picture. ID keys the resolved description;
// Target is the package path of the image bytes (empty when the relationship
// could not be resolved); Alt is the author's alternative text.
type Image struct {
	ID     string
	RelID  string
	Target string
	Name   string
	Alt    string
}

// Note is speaker-notes text attached to a slide.
type Note struct {
	Runs []Run
}

func (*Heading) node()   {}
func (*Paragraph) node() {}
func (*Table) node()     {}
func (*ListItem) node()  {}
func (*Image) node()     {}
func (*Note) node()      {}

// PlainText concatenates the text of runs.
func PlainText(runs []Run) string {
	n := 0
	for _, r := range runs {
		n += len(r.Text)
	}
	b := make([]byte, 0, n)
	for _, r := range runs {
		b = append(b, r.Text...)
	}
	return string(b)
}

// Width returns the largest number of cells in any row.
func (t *Table) Width() int {
	w := 0
	for _, r := range t.Rows {
		if len(r.Cells) > w {
			w = len(r.Cells)
		}
	}
	return w
}
