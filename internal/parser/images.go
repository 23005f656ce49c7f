package parser

import (
	"fmt"
	"path"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/warn"
)

// DefaultMaxImageBytes caps the total bytes fetched for images in one conversion.
const DefaultMaxImageBytes int64 = 50 << 20

// ImageData is a collected image placeholder and, when fetched, its bytes.
// Skipped placeholders are never handed to a describer.
type ImageData struct {
	ID      string
	Name    string
	Target  string
	Alt     string
	Data    []byte
	Skipped bool
}

// ImageCollector assigns placeholder ids in encounter order and fetches
// image bytes lazily under a total byte budget.
type ImageCollector struct {
	pkg    *container.Package
	warn   *warn.Collector
	fetch  bool
	budget int64
	used   int64
	full   bool
	items  []*ImageData
}

// NewImageCollector returns a collector. Bytes are read only when fetch is
// set; budget <= 0 means DefaultMaxImageBytes.
func NewImageCollector(pkg *container.Package, w *warn.Collector, fetch bool, budget int64) *ImageCollector {
	if budget <= 0 {
		budget = DefaultMaxImageBytes
	}
	return &ImageCollector{pkg: pkg, warn: w, fetch: fetch, budget: budget}
}

// Items returns the placeholders in collection order.
func (c *ImageCollector) Items() []*ImageData { return c.items }

// Used returns the bytes fetched so far.
func (c *ImageCollector) Used() int64 { return c.used }

// Collect records the image referenced by relID from part's manifest and
// returns its placeholder node. Only container-level faults are returned.
func (c *ImageCollector) Collect(m rels.Map, part, relID, alt, location string) (*doctree.Image, error) {
	id := fmt.Sprintf("img-%d", len(c.items)+1)
	img := &doctree.Image{ID: id, RelID: relID, Alt: alt}
	item := &ImageData{ID: id, Alt: alt}
	c.items = append(c.items, item)

	r, ok := m.Lookup(relID)
	if !ok || r.Target == "" {
		c.warn.Add(warn.SkippedElement, location, "image relationship '%s' not found", relID)
		item.Skipped = true
		return img, nil
	}
	if r.External {
		img.Name = r.Target
		item.Name = r.Target
		item.Skipped = true
		return img, nil
	}

	target := rels.ResolveTarget(part, r.Target)
	img.Target = target
	img.Name = path.Base(target)
	item.Target = target
	item.Name = img.Name

	if !c.fetch {
		return img, nil
	}
	if c.full {
		item.Skipped = true
		return img, nil
	}
	remaining := c.budget - c.used
	if remaining <= 0 {
		c.exhausted(item, location)
		return img, nil
	}
	data, err := c.pkg.ReadEntryLimit(target, remaining)
	switch {
	case err == nil:
		c.used += int64(len(data))
		item.Data = data
	case errors.Is(err, container.ErrEntryTooLarge):
		c.exhausted(item, location)
	case errors.Is(err, container.ErrResourceLimitExceeded):
		return nil, err
	case errors.Is(err, container.ErrEntryNotFound):
		item.Skipped = true
		c.warn.Add(warn.SkippedElement, location, "image part %s not found", target)
	default:
		item.Skipped = true
		c.warn.Add(warn.MalformedSegment, location, "image part %s unreadable: %v", target, err)
	}
	return img, nil
}

func (c *ImageCollector) exhausted(item *ImageData, location string) {
	c.full = true
	item.Skipped = true
	c.warn.Add(warn.ResourceLimitReached, location,
		"image byte budget of %d bytes exhausted at %s; remaining images left as placeholders", c.budget, item.Name)
}
