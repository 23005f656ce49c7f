// Package convert is the entry point that turns OOXML bytes into Markdown:
// open the container, detect the format, build the document model, resolve
// image descriptions, then render.
package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/markdown"
	"github.com/dgallion1/docmark/internal/parser"
	"github.com/dgallion1/docmark/internal/resolve"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

var (
	ErrUnsupportedFormat = parser.ErrUnsupportedFormat
	ErrStrict            = warn.ErrStrict
)

// StrictError is the first warning of a strict conversion, returned as the failure.
type StrictError = warn.StrictError

// Options configures one conversion. The zero value is usable.
type Options struct {
	Limits             container.Limits
	MaxTotalImageBytes int64
	// ExtractImages returns image bytes in Result.Images.
	ExtractImages bool
	Strict        bool
	// Describer resolves images one at a time. AsyncDescriber, when set,
	// takes precedence and resolves them concurrently.
	Describer      resolve.Describer
	AsyncDescriber resolve.AsyncDescriber
	Prompt         string
	MaxDepth       int
	Logger         *slog.Logger
}

// DefaultOptions returns the documented default limits.
func DefaultOptions() Options {
	return Options{
		Limits:             container.DefaultLimits(),
		MaxTotalImageBytes: parser.DefaultMaxImageBytes,
		MaxDepth:           xmlstream.DefaultMaxDepth,
	}
}

// Fingerprint identifies the options that affect output for describer-free
// conversions.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("in=%d unz=%d ent=%d img=%d x=%t s=%t d=%d",
		o.Limits.MaxInputBytes, o.Limits.MaxUncompressedBytes, o.Limits.MaxEntries,
		o.MaxTotalImageBytes, o.ExtractImages, o.Strict, o.MaxDepth)
}

func (o Options) describes() bool {
	return o.Describer != nil || o.AsyncDescriber != nil
}

// Image is an extracted image whose description was not spliced into the text.
type Image struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"-"`
}

// Result is the outcome of a successful conversion.
type Result struct {
	Markdown string         `json:"markdown"`
	Title    string         `json:"title,omitempty"`
	Format   doctree.Format `json:"format"`
	Images   []Image        `json:"images,omitempty"`
	Warnings []warn.Warning `json:"warnings"`
}

// Convert converts one OOXML package. Describer failures never fail the call;
// in strict mode any extraction or rendering warning does.
func Convert(ctx context.Context, data []byte, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1 << 30)}))
	}
	start := time.Now()

	pkg, err := container.Open(data, opts.Limits)
	if err != nil {
		return nil, err
	}
	format, err := parser.Detect(pkg)
	if err != nil {
		return nil, err
	}
	p, err := parser.For(format)
	if err != nil {
		return nil, err
	}
	log.Debug("container opened", "format", format, "entries", len(pkg.Entries()))

	build := warn.NewCollector(opts.Strict)
	images := parser.NewImageCollector(pkg, build, opts.ExtractImages || opts.describes(), opts.MaxTotalImageBytes)
	session := parser.NewSession(pkg, build, images, log)
	session.XML = xmlstream.Options{MaxDepth: opts.MaxDepth}

	doc, err := p.Parse(session)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", format)
	}
	log.Debug("document built", "units", len(doc.Units), "images", len(images.Items()),
		"image_bytes", images.Used(), "warnings", build.Len())

	placeholders := make([]resolve.Placeholder, 0, len(images.Items()))
	for _, it := range images.Items() {
		placeholders = append(placeholders, resolve.Placeholder{
			ID: it.ID, Name: it.Name, Data: it.Data, Skipped: it.Skipped,
		})
	}
	coord := resolve.New(placeholders, opts.Prompt)

	var results *resolve.Results
	switch {
	case opts.AsyncDescriber != nil:
		results = coord.ResolveConcurrent(ctx, opts.AsyncDescriber)
	case opts.Describer != nil:
		results = coord.ResolveSequential(ctx, opts.Describer)
	}
	var resolveWarnings []warn.Warning
	if results != nil {
		resolveWarnings = results.Warnings
		log.Debug("images resolved", "resolved", results.Count(resolve.Resolved),
			"failed", results.Count(resolve.Failed))
	}

	md, renderWarnings := markdown.Render(doc, results)
	if opts.Strict && len(renderWarnings) > 0 {
		return nil, &StrictError{Warning: renderWarnings[0]}
	}

	res := &Result{
		Markdown: md,
		Title:    doc.Title,
		Format:   format,
		Warnings: warn.Concat(build.Warnings(), resolveWarnings, renderWarnings),
	}
	if opts.ExtractImages {
		for _, it := range images.Items() {
			if len(it.Data) == 0 {
				continue
			}
			if _, ok := results.Alt(it.ID); ok {
				continue
			}
			res.Images = append(res.Images, Image{
				ID: it.ID, Name: it.Name, MIME: resolve.SniffMIME(it.Name, it.Data), Data: it.Data,
			})
		}
	}
	log.Info("converted", "format", format, "bytes_in", len(data), "markdown_bytes", len(md),
		"warnings", len(res.Warnings), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}
