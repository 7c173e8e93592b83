package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text of every page that has any, pages separated by
// a blank line. A page whose content stream cannot be decoded is skipped; the
// document fails only when pages failed and none yielded text.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	var failed []error
	for n := 1; n <= r.NumPage(); n++ {
		p := r.Page(n)
		if p.V.IsNull() {
			continue
		}
		text, err := pageText(p)
		if err != nil {
			failed = append(failed, fmt.Errorf("page %d: %w", n, err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && len(failed) > 0 {
		return "", errors.Join(failed...)
	}
	return strings.Join(pages, "\n\n"), nil
}

// pageText turns a panic from a malformed content stream into an error.
func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()
	return p.GetPlainText(nil)
}
