// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is a recognized document format.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
	FormatPPTX  Format = "pptx"
	FormatXLSX  Format = "xlsx"
	FormatPlain Format = "plain"
)

var pdfMagic = []byte("%PDF-")

// Detect returns the format of content, judged by the filename extension,
// with PDF also recognized by its magic bytes. Anything unrecognized is plain text.
func Detect(filename string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".pptx":
		return FormatPPTX
	case ".xlsx":
		return FormatXLSX
	}
	if bytes.HasPrefix(content, pdfMagic) {
		return FormatPDF
	}
	return FormatPlain
}

// Extractor extracts plain text from document bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractBytes extracts the text of content. filename is only used to pick the format.
func (e *Extractor) ExtractBytes(content []byte, filename string) (string, error) {
	format := Detect(filename, content)
	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(content)
	case FormatDOCX:
		text, err = extractDOCX(content)
	case FormatPPTX:
		text, err = extractPPTX(content)
	case FormatXLSX:
		text, err = extractExcel(content)
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s from %s: %w", format, filename, err)
	}
	return text, nil
}

// ExtractFile reads the file at path and extracts its text.
func (e *Extractor) ExtractFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Base(path))
}
