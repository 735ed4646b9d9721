// Package extract turns uploaded file bytes into plain text. It handles the
// formats the upload endpoint accepts (txt, markdown, pdf, html, docx);
// anything else is rejected with ErrUnsupportedFormat.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat reports a file extension no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extract converts file bytes to plain text based on the filename's
// extension. Line endings are normalized to \n. The result may still be
// empty; callers decide whether that is an error.
func Extract(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown":
		return plainText(data)
	case ".pdf":
		return pdfText(data)
	case ".html", ".htm":
		return htmlText(data)
	case ".docx":
		return docxText(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8 text", ErrUnsupportedFormat)
	}
	return normalize(string(data)), nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
