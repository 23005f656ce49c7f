package convert

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/ooxmltest"
	"github.com/dgallion1/docmark/internal/resolve"
	"github.com/dgallion1/docmark/internal/warn"
)

func sampleDocx() []byte {
	body := ooxmltest.Para("Heading1", "Quarterly report") +
		ooxmltest.Para("", "Revenue grew in every region.") +
		ooxmltest.Table([]string{"Region", "Growth"}, []string{"EMEA", "4|5%"}) +
		ooxmltest.Para("Heading2", "Outlook")
	return ooxmltest.Docx(body, nil)
}

func TestConvert_Docx(t *testing.T) {
	res, err := Convert(context.Background(), sampleDocx(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, doctree.DOCX, res.Format)
	assert.Equal(t, "# Quarterly report\n\n"+
		"Revenue grew in every region.\n\n"+
		"| Region | Growth |\n| --- | --- |\n| EMEA | 4\\|5% |\n\n"+
		"## Outlook\n", res.Markdown)
	assert.Empty(t, res.Warnings)
}

func TestConvert_Idempotent(t *testing.T) {
	inputs := map[string][]byte{
		"docx": sampleDocx(),
		"pptx": ooxmltest.Pptx([]ooxmltest.Slide{
			{Title: "Intro", Body: []string{"one", "two"}, Notes: "speak slowly"},
			{Title: "End"},
		}, nil),
		"xlsx": ooxmltest.Xlsx([]ooxmltest.Sheet{
			{Name: "Data", Rows: [][]string{{"a", "b"}, {"1", "2"}}},
		}, nil),
	}
	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			first, err := Convert(context.Background(), data, DefaultOptions())
			require.NoError(t, err)
			second, err := Convert(context.Background(), data, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, first.Markdown, second.Markdown)
			assert.Equal(t, first.Warnings, second.Warnings)
			assert.NotEmpty(t, first.Markdown)
		})
	}
}

type countingObserver struct{ total int64 }

func (c *countingObserver) Inflated(_ string, n int) { c.total += int64(n) }

func TestConvert_UncompressedLimit(t *testing.T) {
	big := strings.Repeat("All work and no play makes a dull document. ", 50000)
	data := ooxmltest.Docx(ooxmltest.Para("", big), nil)
	require.Less(t, len(data), 200<<10, "fixture should compress well")

	const limit = 256 << 10
	obs := &countingObserver{}
	opts := DefaultOptions()
	opts.Limits.MaxUncompressedBytes = limit
	opts.Limits.Observer = obs

	_, err := Convert(context.Background(), data, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, container.ErrResourceLimitExceeded))
	assert.LessOrEqual(t, obs.total, int64(limit), "decompression must stop at the limit")
	assert.NotEmpty(t, errors.FlattenHints(err))
}

func TestConvert_UncompressedLimitOnRelationships(t *testing.T) {
	manifest := `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		strings.Repeat(`<Relationship Id="rIdX" Type="urn:unused" Target="../media/none.png"/>`, 800) +
		`</Relationships>`
	data := ooxmltest.Xlsx([]ooxmltest.Sheet{{Name: "S", Rows: [][]string{{"a", "b"}}}},
		ooxmltest.Files{"xl/worksheets/_rels/sheet1.xml.rels": manifest})

	opts := DefaultOptions()
	opts.Limits.MaxUncompressedBytes = 5000
	res, err := Convert(context.Background(), data, opts)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, container.ErrResourceLimitExceeded), "got %v", err)
}

func TestConvert_InputTooLarge(t *testing.T) {
	opts := DefaultOptions()
	opts.Limits.MaxInputBytes = 10
	_, err := Convert(context.Background(), sampleDocx(), opts)
	assert.True(t, errors.Is(err, container.ErrInputTooLarge))
}

func TestConvert_NotAPackage(t *testing.T) {
	_, err := Convert(context.Background(), []byte("plain text, not a zip"), DefaultOptions())
	assert.True(t, errors.Is(err, container.ErrContainerCorrupt))

	_, err = Convert(context.Background(), ooxmltest.Zip(ooxmltest.Files{"readme.txt": "hi"}), DefaultOptions())
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func corruptTableDocx() []byte {
	body := ooxmltest.Para("", "before") +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>broken</w:r></w:p></w:tc></w:tr></w:tbl>` +
		ooxmltest.Para("", "after")
	return ooxmltest.Docx(body, nil)
}

func TestConvert_CorruptTableLax(t *testing.T) {
	res, err := Convert(context.Background(), corruptTableDocx(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "before\n\nafter\n", res.Markdown)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, warn.MalformedSegment, res.Warnings[0].Code)
}

func TestConvert_CorruptTableStrict(t *testing.T) {
	opts := DefaultOptions()
	opts.Strict = true
	res, err := Convert(context.Background(), corruptTableDocx(), opts)
	assert.Nil(t, res)
	require.True(t, errors.Is(err, ErrStrict))
	var se *StrictError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, warn.MalformedSegment, se.Warning.Code)
}

func TestConvert_StrictOnRenderWarning(t *testing.T) {
	data := ooxmltest.Docx(ooxmltest.Para("Heading8", "very deep"), nil)

	res, err := Convert(context.Background(), data, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "###### very deep\n", res.Markdown)
	assert.Equal(t, []warn.Code{warn.UnsupportedFeature}, codesOf(res.Warnings))

	opts := DefaultOptions()
	opts.Strict = true
	_, err = Convert(context.Background(), data, opts)
	assert.True(t, errors.Is(err, ErrStrict))
}

func codesOf(ws []warn.Warning) []warn.Code {
	var out []warn.Code
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestConvert_UnicodePreserved(t *testing.T) {
	text := "Grüße aus Zürich, 日本語のテキスト, emoji 🎉, RTL שלום"
	res, err := Convert(context.Background(), ooxmltest.Docx(ooxmltest.Para("", text), nil), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, text+"\n", res.Markdown)
}

func imageDocx() []byte {
	para := func(rid, descr string) string {
		return `<w:p><w:r><w:drawing><wp:inline><wp:docPr id="1" name="p" descr="` + descr + `"/>` +
			`<a:graphic><a:graphicData><pic:pic><pic:blipFill><a:blip r:embed="` + rid + `"/></pic:blipFill></pic:pic></a:graphicData></a:graphic>` +
			`</wp:inline></w:drawing></w:r></w:p>`
	}
	return ooxmltest.Docx(para("rId7", "")+para("rId8", "Team photo"), ooxmltest.Files{
		"word/_rels/document.xml.rels": ooxmltest.Rels(
			ooxmltest.Rel{ID: "rId7", Type: ooxmltest.RelImage, Target: "media/chart.png"},
			ooxmltest.Rel{ID: "rId8", Type: ooxmltest.RelImage, Target: "media/team.jpg"},
		),
		"word/media/chart.png": "chart-bytes",
		"word/media/team.jpg":  "team-bytes",
	})
}

func TestConvert_DescribesImages(t *testing.T) {
	d := resolve.DescriberFunc(func(_ context.Context, data []byte, _, _ string) (string, error) {
		if string(data) == "team-bytes" {
			return "", errors.New("quota exceeded")
		}
		return "Line chart of sales", nil
	})

	for _, concurrent := range []bool{false, true} {
		opts := DefaultOptions()
		opts.ExtractImages = true
		opts.Strict = true
		if concurrent {
			opts.AsyncDescriber = resolve.Async(d)
		} else {
			opts.Describer = d
		}
		res, err := Convert(context.Background(), imageDocx(), opts)
		require.NoError(t, err, "describer failures never escalate")
		assert.Equal(t, "![Line chart of sales](chart.png)\n\n![Team photo](team.jpg)\n", res.Markdown)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, warn.UnsupportedFeature, res.Warnings[0].Code)

		require.Len(t, res.Images, 1, "only the undescribed image is returned")
		assert.Equal(t, "team.jpg", res.Images[0].Name)
		assert.Equal(t, "image/jpeg", res.Images[0].MIME)
		assert.Equal(t, []byte("team-bytes"), res.Images[0].Data)
	}
}

func TestConvert_ImagesWithoutDescriber(t *testing.T) {
	res, err := Convert(context.Background(), imageDocx(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "![chart.png](chart.png)\n\n![Team photo](team.jpg)\n", res.Markdown)
	assert.Empty(t, res.Images)
}

func TestConvert_GeneratedDocx(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("Written by a real DOCX writer.")
	p := w.AddParagraph()
	p.AddText("Plain then ")
	p.AddText("bold").Bold()

	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)

	res, err := Convert(context.Background(), buf.Bytes(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, doctree.DOCX, res.Format)
	assert.Contains(t, res.Markdown, "Written by a real DOCX writer.")
	assert.Contains(t, res.Markdown, "Plain then **bold**")
}

func TestConvert_Fingerprint(t *testing.T) {
	a := DefaultOptions()
	b := DefaultOptions()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Strict = true
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
