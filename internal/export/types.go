// Package export renders a screenplay for printing and download as HTML,
// plain text, PDF or DOCX.
package export

import (
	"errors"
	"strings"

	"screenplay/api/internal/screenplay"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
	FormatText Format = "txt"
)

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatPDF, FormatDOCX, FormatHTML, FormatText:
		return f, nil
	case "":
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Screenplay is the document handed to the exporter: scenes in document
// order, elements typed.
type Screenplay struct {
	Title  string
	Author string
	Scenes []screenplay.Scene
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrArtifactsDisabled     = errors.New("export artifact storage not configured")
)
