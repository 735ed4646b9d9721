package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtract_PlainText(t *testing.T) {
	got, err := Extract([]byte("hello world\r\nsecond line"), "notes.txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "hello world\nsecond line" {
		t.Errorf("got %q, want normalized line endings", got)
	}
}

func TestExtract_Markdown(t *testing.T) {
	got, err := Extract([]byte("# Title\n\nBody text."), "readme.md")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Body text.") {
		t.Errorf("markdown content lost: %q", got)
	}
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	for _, name := range []string{"binary.exe", "archive.tar.gz", "noext"} {
		_, err := Extract([]byte("data"), name)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Extract(%q): expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestExtract_InvalidUTF8(t *testing.T) {
	_, err := Extract([]byte{0xff, 0xfe, 0x00, 0x41}, "binary.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for non-UTF-8 text, got %v", err)
	}
}

func TestExtract_HTML(t *testing.T) {
	page := `<html><head><title>T</title><style>.x{color:red}</style></head>
<body><h1>Refund Policy</h1><p>30-day money-back guarantee.</p>
<script>alert("hidden")</script></body></html>`

	got, err := Extract([]byte(page), "policy.html")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Refund Policy") || !strings.Contains(got, "30-day money-back guarantee.") {
		t.Errorf("visible text missing: %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("script/style content leaked: %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Errorf("expected paragraph break between blocks: %q", got)
	}
}

func makeDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating document.xml: %v", err)
	}
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	if _, err := w.Write([]byte(body.String())); err != nil {
		t.Fatalf("writing document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtract_Docx(t *testing.T) {
	data := makeDocx(t, "First paragraph.", "Second paragraph.")

	got, err := Extract(data, "report.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") || !strings.Contains(got, "Second paragraph.") {
		t.Errorf("paragraph text missing: %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Errorf("expected paragraph break: %q", got)
	}
}

func TestExtract_DocxNotAnArchive(t *testing.T) {
	_, err := Extract([]byte("plain bytes, not a zip"), "fake.docx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtract_PdfGarbage(t *testing.T) {
	// Not a real PDF; the parser must fail cleanly, not panic.
	_, err := Extract([]byte("%PDF-1.4 truncated garbage"), "broken.pdf")
	if err == nil {
		t.Error("expected an error for malformed pdf")
	}
}
