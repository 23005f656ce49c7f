package parser

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/container"
	"github.com/dgallion1/docmark/internal/doctree"
	"github.com/dgallion1/docmark/internal/rels"
)

var formatPrefixes = []struct {
	prefix string
	format doctree.Format
}{
	{"word/", doctree.DOCX},
	{"ppt/", doctree.PPTX},
	{"xl/", doctree.XLSX},
}

// Detect identifies the package flavour from the office document
// relationship, falling back to the characteristic part directories.
func Detect(pkg *container.Package) (doctree.Format, error) {
	root, err := rels.Load(pkg, "", nil)
	if err != nil {
		return "", err
	}
	for _, r := range root.ByType(relOfficeDocument) {
		target := rels.ResolveTarget("", r.Target)
		for _, fp := range formatPrefixes {
			if strings.HasPrefix(target, fp.prefix) {
				return fp.format, nil
			}
		}
	}
	for _, fp := range formatPrefixes {
		if pkg.HasPrefix(fp.prefix) {
			return fp.format, nil
		}
	}
	return "", errors.WithHint(ErrUnsupportedFormat, "expected a .docx, .pptx or .xlsx package")
}
