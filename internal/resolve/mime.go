package resolve

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var formatMIME = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

var extMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".emf":  "image/emf",
	".wmf":  "image/wmf",
}

// SniffMIME identifies image bytes by their header, then by file extension.
func SniffMIME(name string, data []byte) string {
	if len(data) > 0 {
		if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			if m, ok := formatMIME[format]; ok {
				return m
			}
		}
	}
	if m, ok := extMIME[strings.ToLower(path.Ext(name))]; ok {
		return m
	}
	return "application/octet-stream"
}
