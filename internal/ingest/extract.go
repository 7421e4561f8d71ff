package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/localrag/localrag/internal/document"
)

// Sentinel errors for ingestion. Check with errors.Is().
var (
	// ErrUnsupportedFormat indicates the file extension is not ingestable.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtraction indicates text extraction from the file failed.
	ErrExtraction = errors.New("text extraction failed")
)

// pageSeparator joins extracted pages/sections into the document's full text.
const pageSeparator = "\n\n"

// typeForExtension maps a filename to its document type.
// Returns ErrUnsupportedFormat for anything but .pdf, .md and .markdown.
func typeForExtension(filename string) (document.Type, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return document.TypePDF, nil
	case ".md", ".markdown":
		return document.TypeMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// extractText reads the file and returns its full plain text.
func extractText(r io.Reader, docType document.Type) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: reading file: %v", ErrExtraction, err)
	}

	switch docType {
	case document.TypePDF:
		return extractPDF(content)
	case document.TypeMarkdown:
		return string(content), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, docType)
	}
}

// extractPDF extracts plain text from every page of a PDF, joined with
// blank lines.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: opening PDF: %v", ErrExtraction, err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: extracting page %d: %v", ErrExtraction, i, err)
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, pageSeparator), nil
}
