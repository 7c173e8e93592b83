package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultMainPart = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	maxOOXMLPartBytes   = 64 << 20
)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip package: %w", err)
	}
	return zr, nil
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxOOXMLPartBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// docxMainPart returns the main document part named in [Content_Types].xml,
// or the conventional word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readPart(f)
		if err != nil {
			break
		}
		var types struct {
			Overrides []struct {
				PartName    string `xml:"PartName,attr"`
				ContentType string `xml:"ContentType,attr"`
			} `xml:"Override"`
		}
		if err := xml.Unmarshal(data, &types); err != nil {
			break
		}
		for _, o := range types.Overrides {
			if o.ContentType == docxMainContentType {
				return strings.TrimPrefix(o.PartName, "/")
			}
		}
	}
	return docxDefaultMainPart
}

// textRuns collects the character data of every "t" element (w:t in Word,
// a:t in DrawingML). Runs within a paragraph are concatenated; paragraphs
// are separated by newlines.
func textRuns(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		b      strings.Builder
		inText bool
		para   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(para.String()); s != "" {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(s)
		}
		para.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flush()
	return b.String(), nil
}

func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	main := docxMainPart(zr)
	for _, f := range zr.File {
		if f.Name != main {
			continue
		}
		data, err := readPart(f)
		if err != nil {
			return "", err
		}
		return textRuns(data)
	}
	return "", fmt.Errorf("%s not found", main)
}

// extractPPTX extracts slide text in slide-number order.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		num, ok := strings.CutPrefix(f.Name, pptxSlidePrefix)
		if !ok {
			continue
		}
		num, ok = strings.CutSuffix(num, ".xml")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(num); err == nil {
			slides = append(slides, slide{n: n, f: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var parts []string
	for _, s := range slides {
		data, err := readPart(s.f)
		if err != nil {
			return "", err
		}
		text, err := textRuns(data)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.n, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
