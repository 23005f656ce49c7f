package parser

import (
	"io"
	"strings"

	"github.com/dgallion1/docmark/internal/rels"
	"github.com/dgallion1/docmark/internal/xmlstream"
)

// coreTitle reads dc:title from the core properties part, if any.
func coreTitle(s *Session) (string, error) {
	root, err := rels.Load(s.Pkg, "", nil)
	if err != nil {
		return "", err
	}
	name := partByType(root, "", relCoreProps, "docProps/core.xml")
	data, err := s.readOptional(name)
	if err != nil || data == nil {
		return "", err
	}
	st := s.stream(name, data)
	var sb strings.Builder
	inTitle := false
	for {
		ev, err := st.Next()
		if err != nil {
			if err != io.EOF {
				s.xmlError(name, "core properties", err)
			}
			break
		}
		switch {
		case ev.IsOpen("title"):
			inTitle = true
		case ev.IsClose("title"):
			return strings.TrimSpace(sb.String()), nil
		case inTitle && ev.Kind == xmlstream.Text:
			sb.WriteString(ev.Text)
		}
	}
	return "", nil
}
