// Package parser converts PDF, Markdown, and plain text documents into a single
// plain-text string, dispatching on the filename extension.
package parser

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/stemrag/internal/models"
)

// Parser extracts plain text from document files.
type Parser struct{}

// NewParser returns a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads the file at path and returns its text and detected type.
// The extension is checked before the file is read, so unsupported files are
// rejected without I/O.
func (p *Parser) ParseFile(path string) (string, models.SourceType, error) {
	name := filepath.Base(path)
	st := models.SourceTypeFromFilename(name)
	if st == models.SourceTypeUnknown {
		return "", st, &UnsupportedFileTypeError{Ext: strings.ToLower(filepath.Ext(name))}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", st, &ParseError{Source: name, Err: err}
	}
	text, err := parse(content, st)
	if err != nil {
		return "", st, &ParseError{Source: name, Err: err}
	}
	return text, st, nil
}

// ParseBytes parses an in-memory buffer; filename is only used for its extension
// and for error messages.
func (p *Parser) ParseBytes(content []byte, filename string) (string, models.SourceType, error) {
	st := models.SourceTypeFromFilename(filename)
	if st == models.SourceTypeUnknown {
		return "", st, &UnsupportedFileTypeError{Ext: strings.ToLower(filepath.Ext(filename))}
	}
	text, err := parse(content, st)
	if err != nil {
		return "", st, &ParseError{Source: filename, Err: err}
	}
	return text, st, nil
}

func parse(content []byte, st models.SourceType) (string, error) {
	switch st {
	case models.SourceTypePDF:
		return extractPDF(content)
	case models.SourceTypeMarkdown:
		return extractMarkdown(content)
	default:
		return extractPlain(content)
	}
}
