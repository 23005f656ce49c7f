package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/ooxmltest"
	"github.com/dgallion1/docmark/internal/warn"
)

func headingText(t *testing.T, u *doctree.Unit) string {
	t.Helper()
	h, ok := u.Nodes[0].(*doctree.Heading)
	require.True(t, ok, "first node is %T", u.Nodes[0])
	assert.Equal(t, 2, h.Level)
	return h.Text
}

func TestPPTX_SlidesInPresentationOrder(t *testing.T) {
	data := ooxmltest.Pptx([]ooxmltest.Slide{
		{Title: "Welcome", Body: []string{"Hello there"}, Notes: "Say hi\nthen smile"},
		{Body: []string{"untitled body"}},
		{Title: "End"},
	}, nil)
	b := mustBuild(t, data)

	require.Len(t, b.doc.Units, 3)
	assert.True(t, b.doc.Ruled)
	assert.Equal(t, "Welcome", b.doc.Title)
	assert.Equal(t, "Slide 1: Welcome", headingText(t, b.doc.Units[0]))
	assert.Equal(t, "Slide 2", headingText(t, b.doc.Units[1]))
	assert.Equal(t, "Slide 3: End", headingText(t, b.doc.Units[2]))

	first := b.doc.Units[0].Nodes
	require.Len(t, first, 3)
	assert.Equal(t, "Hello there", doctree.PlainText(first[1].(*doctree.Paragraph).Runs))
	note := first[2].(*doctree.Note)
	assert.Equal(t, "Say hi\nthen smile", doctree.PlainText(note.Runs))
	assert.Empty(t, b.warnings)
}

func TestPPTX_ListsTablesAndPictures(t *testing.T) {
	body := `<p:sp><p:nvSpPr><p:cNvPr id="3" name="List"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:txBody>` +
		`<a:p><a:pPr><a:buChar char="•"/></a:pPr><a:r><a:rPr b="1"/><a:t>bullet</a:t></a:r></a:p>` +
		`<a:p><a:pPr lvl="1"/><a:r><a:t>indented</a:t></a:r></a:p>` +
		`<a:p><a:pPr><a:buAutoNum type="arabicPeriod"/></a:pPr><a:r><a:rPr><a:hlinkClick r:id="rIdL"/></a:rPr><a:t>numbered</a:t></a:r></a:p>` +
		`</p:txBody></p:sp>` +
		`<p:graphicFrame><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl>` +
		`<a:tr><a:tc><a:txBody><a:p><a:r><a:t>k</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>v</a:t></a:r></a:p></a:txBody></a:tc></a:tr>` +
		`<a:tr><a:tc gridSpan="2"><a:txBody><a:p><a:r><a:t>merged</a:t></a:r></a:p></a:txBody></a:tc><a:tc hMerge="1"><a:txBody><a:p/></a:txBody></a:tc></a:tr>` +
		`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>` +
		`<p:pic><p:nvPicPr><p:cNvPr id="4" name="Picture" descr="A chart"/></p:nvPicPr><p:blipFill><a:blip r:embed="rIdImg"/></p:blipFill></p:pic>`
	data := ooxmltest.Pptx([]ooxmltest.Slide{{
		Title: "Mixed",
		Extra: body,
		Rels: []ooxmltest.Rel{
			{ID: "rIdL", Type: ooxmltest.RelHyperlink, Target: "https://example.com", External: true},
			{ID: "rIdImg", Type: ooxmltest.RelImage, Target: "../media/image1.png"},
		},
	}}, ooxmltest.Files{"ppt/media/image1.png": "png"})
	b := mustBuild(t, data)

	nodes := b.doc.Units[0].Nodes
	require.Len(t, nodes, 6)
	bullet := nodes[1].(*doctree.ListItem)
	assert.False(t, bullet.Ordered)
	assert.True(t, bullet.Runs[0].Bold)
	assert.Equal(t, 1, nodes[2].(*doctree.ListItem).Depth)
	numbered := nodes[3].(*doctree.ListItem)
	assert.True(t, numbered.Ordered)
	assert.Equal(t, "https://example.com", numbered.Runs[0].Link)

	tbl := nodes[4].(*doctree.Table)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 2, tbl.Width())

	img := nodes[5].(*doctree.Image)
	assert.Equal(t, "A chart", img.Alt)
	assert.Equal(t, "ppt/media/image1.png", img.Target)
	assert.Empty(t, b.warnings)
}

func TestPPTX_MissingAndBrokenSlides(t *testing.T) {
	data := ooxmltest.Pptx([]ooxmltest.Slide{
		{Title: "One"},
		{Title: "Two", Broken: true},
		{Title: "Three"},
	}, nil)
	// Drop slide 3's part while keeping its relationship.
	b := mustBuild(t, ooxmltest.Without(data, "ppt/slides/slide3.xml"))

	require.Len(t, b.doc.Units, 2)
	assert.Equal(t, "Slide 2: Two", headingText(t, b.doc.Units[1]))
	assert.Equal(t, []warn.Code{warn.MalformedSegment, warn.SkippedElement}, codes(b.warnings))
	assert.Contains(t, b.warnings[0].Message, "XML parse error in slide")
	assert.Equal(t, "ppt/slides/slide3.xml", b.warnings[1].Location)
}

func TestPPTX_MissingNotes(t *testing.T) {
	data := ooxmltest.Pptx([]ooxmltest.Slide{{Title: "A", Notes: "n"}}, nil)
	b := mustBuild(t, ooxmltest.Without(data, "ppt/notesSlides/notesSlide1.xml"))
	require.Len(t, b.doc.Units, 1)
	assert.Len(t, b.doc.Units[0].Nodes, 1)
	assert.Equal(t, []warn.Code{warn.SkippedElement}, codes(b.warnings))
}
