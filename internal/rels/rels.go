// Package rels parses OPC relationship manifests (*.rels) and resolves their
// targets against the part that owns them.
package rels

import (
	"io"
	"path"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/warn"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

// Relationship is one entry of a manifest.
type Relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
}

// Map is an immutable id -> relationship table.
type Map struct {
	byID  map[string]Relationship
	order []string
}

// Lookup returns the relationship for id.
func (m Map) Lookup(id string) (Relationship, bool) {
	r, ok := m.byID[id]
	return r, ok
}

// ByType returns relationships whose type URI ends with suffix, in manifest order.
func (m Map) ByType(suffix string) []Relationship {
	var out []Relationship
	for _, id := range m.order {
		if r := m.byID[id]; strings.HasSuffix(r.Type, suffix) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of relationships.
func (m Map) Len() int { return len(m.order) }

// Parse reads a manifest, ignoring anything it cannot use.
func Parse(manifest []byte) Map {
	return ParseWithWarnings(manifest, "", nil)
}

// ParseWithWarnings is Parse that reports duplicate ids and XML damage to w.
// Relationships read before any damage are kept.
func ParseWithWarnings(manifest []byte, location string, w *warn.Collector) Map {
	m := Map{byID: make(map[string]Relationship)}
	s := xmlstream.New(manifest, xmlstream.Options{})
	for {
		ev, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if w != nil {
				w.Add(warn.MalformedSegment, location, "relationship manifest: %v", err)
			}
			break
		}
		if !ev.IsOpen("Relationship") {
			continue
		}
		id, _ := ev.Attr("Id")
		if id == "" {
			continue
		}
		if _, dup := m.byID[id]; dup {
			if w != nil {
				w.Add(warn.MalformedSegment, location, "duplicate relationship id %q", id)
			}
			continue
		}
		m.byID[id] = Relationship{
			ID:       id,
			Type:     ev.AttrOr("Type", ""),
			Target:   ev.AttrOr("Target", ""),
			External: strings.EqualFold(ev.AttrOr("TargetMode", ""), "External"),
		}
		m.order = append(m.order, id)
	}
	return m
}

// Load reads the manifest belonging to part. A missing manifest is an empty
// map. Only a blown uncompressed budget is returned as an error; other read
// failures are recorded on w, when given, and yield an empty map.
func Load(pkg *container.Package, part string, w *warn.Collector) (Map, error) {
	p := PathFor(part)
	if !pkg.Has(p) {
		return Map{}, nil
	}
	data, err := pkg.ReadEntry(p)
	if err != nil {
		if errors.Is(err, container.ErrResourceLimitExceeded) {
			return Map{}, errors.Wrapf(err, "read %s", p)
		}
		if w != nil {
			w.Add(warn.MalformedSegment, p, "read relationships: %v", err)
		}
		return Map{}, nil
	}
	return ParseWithWarnings(data, p, w), nil
}

// PathFor returns the manifest path for a part:
// "ppt/slides/slide1.xml" -> "ppt/slides/_rels/slide1.xml.rels".
func PathFor(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// ResolveTarget resolves a relationship target relative to the directory of
// the owning part. Absolute targets are package-rooted.
func ResolveTarget(part, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	joined := path.Join(path.Dir(part), target)
	return strings.TrimPrefix(joined, "/")
}
