// Package container opens OOXML packages (ZIP archives) in memory and hands out
// entry bytes under a hard budget of decompressed bytes.
package container

import (
	"bytes"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zip"
)

const (
	DefaultMaxInputBytes        int64 = 100 << 20
	DefaultMaxUncompressedBytes int64 = 500 << 20
	DefaultMaxEntries                 = 10000
)

var (
	ErrInputTooLarge         = errors.New("input exceeds maximum size")
	ErrContainerCorrupt      = errors.New("container is not a readable zip archive")
	ErrResourceLimitExceeded = errors.New("uncompressed size limit exceeded")
	ErrTooManyEntries        = errors.New("container has too many entries")
	ErrEntryNotFound         = errors.New("entry not found")
)

// Observer receives every chunk of decompressed bytes as it is produced.
type Observer interface {
	Inflated(entry string, n int)
}

// Limits bounds what a single conversion may read.
type Limits struct {
	MaxInputBytes        int64
	MaxUncompressedBytes int64
	MaxEntries           int
	Observer             Observer
}

// DefaultLimits returns the limits used when a caller sets none.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes:        DefaultMaxInputBytes,
		MaxUncompressedBytes: DefaultMaxUncompressedBytes,
		MaxEntries:           DefaultMaxEntries,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxInputBytes <= 0 {
		l.MaxInputBytes = d.MaxInputBytes
	}
	if l.MaxUncompressedBytes <= 0 {
		l.MaxUncompressedBytes = d.MaxUncompressedBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = d.MaxEntries
	}
	return l
}

// Entry describes one archive member.
type Entry struct {
	Name           string
	CompressedSize int64
	Size           int64
}

// Package is an opened archive. It is owned by one conversion call and is not
// safe for concurrent use.
type Package struct {
	files   map[string]*zip.File
	entries []Entry
	limits  Limits

	inflated int64
	tripped  bool
}

// Open parses the archive directory of data. The input size is checked before
// anything else is looked at. Nothing is decompressed until an entry is read.
func Open(data []byte, limits Limits) (*Package, error) {
	limits = limits.withDefaults()
	if int64(len(data)) > limits.MaxInputBytes {
		return nil, errors.WithHintf(
			errors.Wrapf(ErrInputTooLarge, "%d bytes > %d", len(data), limits.MaxInputBytes),
			"raise the input size limit (currently %d bytes)", limits.MaxInputBytes)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "open zip"), ErrContainerCorrupt)
	}
	if len(zr.File) > limits.MaxEntries {
		return nil, errors.Wrapf(ErrTooManyEntries, "%d entries > %d", len(zr.File), limits.MaxEntries)
	}

	p := &Package{
		files:  make(map[string]*zip.File, len(zr.File)),
		limits: limits,
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalize(f.Name)
		if _, dup := p.files[name]; dup {
			continue
		}
		p.files[name] = f
		p.entries = append(p.entries, Entry{
			Name:           name,
			CompressedSize: int64(f.CompressedSize64),
			Size:           int64(f.UncompressedSize64),
		})
	}
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].Name < p.entries[j].Name })
	return p, nil
}

// Entries lists the archive members sorted by name.
func (p *Package) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Has reports whether the archive contains name.
func (p *Package) Has(name string) bool {
	_, ok := p.files[normalize(name)]
	return ok
}

// HasPrefix reports whether any entry name starts with prefix.
func (p *Package) HasPrefix(prefix string) bool {
	for _, e := range p.entries {
		if strings.HasPrefix(e.Name, prefix) {
			return true
		}
	}
	return false
}

// Inflated returns the number of decompressed bytes produced so far.
func (p *Package) Inflated() int64 { return p.inflated }

// ReadEntry decompresses one entry, charging its bytes to the package budget.
func (p *Package) ReadEntry(name string) ([]byte, error) {
	return p.ReadEntryLimit(name, 0)
}

// ReadEntryLimit is ReadEntry with an additional per-entry cap. A positive max
// smaller than the entry returns ErrEntryTooLarge without charging the
// package budget for more than max bytes.
func (p *Package) ReadEntryLimit(name string, max int64) ([]byte, error) {
	if p.tripped {
		return nil, limitError(p.inflated, p.limits.MaxUncompressedBytes)
	}
	name = normalize(name)
	f, ok := p.files[name]
	if !ok {
		return nil, errors.Wrapf(ErrEntryNotFound, "%q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open entry %q", name)
	}
	defer rc.Close()

	cr := &countingReader{r: rc, pkg: p, name: name, max: max}
	buf := bytes.NewBuffer(make([]byte, 0, capHint(f.UncompressedSize64, max)))
	if _, err := io.Copy(buf, cr); err != nil {
		if errors.Is(err, ErrResourceLimitExceeded) || errors.Is(err, ErrEntryTooLarge) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "inflate entry %q", name)
	}
	return buf.Bytes(), nil
}

// ErrEntryTooLarge is returned by ReadEntryLimit when the per-entry cap trips.
var ErrEntryTooLarge = errors.New("entry exceeds per-entry limit")

type countingReader struct {
	r    io.Reader
	pkg  *Package
	name string
	max  int64
	read int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	p := c.pkg
	remaining := p.limits.MaxUncompressedBytes - p.inflated
	if c.max > 0 && c.max-c.read < remaining {
		remaining = c.max - c.read
	}
	// Ask for at most one byte past what is allowed, so an overflow is seen
	// without inflating more than necessary.
	if int64(len(b)) > remaining+1 {
		b = b[:remaining+1]
	}
	n, err := c.r.Read(b)
	if int64(n) > remaining {
		allowed := int(remaining)
		if allowed > 0 && p.limits.Observer != nil {
			p.limits.Observer.Inflated(c.name, allowed)
		}
		p.inflated += int64(allowed)
		c.read += int64(allowed)
		if c.max > 0 && c.read >= c.max && p.inflated < p.limits.MaxUncompressedBytes {
			return allowed, errors.Wrapf(ErrEntryTooLarge, "%q over %d bytes", c.name, c.max)
		}
		p.tripped = true
		return allowed, limitError(p.inflated+1, p.limits.MaxUncompressedBytes)
	}
	if n > 0 {
		if p.limits.Observer != nil {
			p.limits.Observer.Inflated(c.name, n)
		}
		p.inflated += int64(n)
		c.read += int64(n)
	}
	return n, err
}

func limitError(got, max int64) error {
	return errors.WithHintf(
		errors.Wrapf(ErrResourceLimitExceeded, "%d bytes > %d", got, max),
		"raise the uncompressed size limit (currently %d bytes)", max)
}

func capHint(size uint64, max int64) int {
	const ceiling = 4 << 20
	n := int64(size)
	if max > 0 && n > max {
		n = max
	}
	if n < 0 || n > ceiling {
		n = ceiling
	}
	return int(n)
}

func normalize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimPrefix(name, "/")
	return path.Clean(name)
}
