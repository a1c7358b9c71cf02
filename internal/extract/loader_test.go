package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// zipOf builds an archive from name/content pairs in the given order.
func zipOf(t *testing.T, entries ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i+1 < len(entries); i += 2 {
		fw, err := w.Create(entries[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(entries[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wordBody(paras ...string) string {
	s := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, p := range paras {
		s += `<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`
	}
	return s + `</w:body></w:document>`
}

func slide(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		want    string
	}{
		{"plain", "a.txt", []byte("Hello world\nLine 2"), "Hello world\nLine 2"},
		{"markdown utf8", "a.md", []byte("caf\xc3\xa9"), "café"},
		{"invalid utf8", "a.rst", []byte("hello\x80world"), "hello\uFFFDworld"},
		{"csv", "a.csv", []byte("name,price\nwidget,10\n"), "name: widget; price: 10\n"},
		{"docx", "a.docx", zipOf(t, "word/document.xml", wordBody("First para", "Second para")), "First para\nSecond para"},
		{
			"docx custom body part", "b.docx",
			zipOf(t,
				"[Content_Types].xml", `<Types><Override ContentType="`+docxMainContentType+`" PartName="/word/document2.xml"/></Types>`,
				"word/document2.xml", wordBody("From document2")),
			"From document2",
		},
		{
			"pptx slide order", "a.pptx",
			zipOf(t,
				"ppt/slides/slide10.xml", slide("Tenth"),
				"ppt/slides/slide2.xml", slide("Second"),
				"ppt/slides/slide1.xml", slide("First"),
				"ppt/slides/_rels/slide1.xml.rels", "<Relationships/>"),
			"First\nSecond\nTenth",
		},
		{
			"odp", "a.odp",
			zipOf(t, "content.xml", `<office:body><draw:page><text:h>Title</text:h><text:p>Body text</text:p></draw:page></office:body>`),
			"Title Body text",
		},
		{
			"ods", "a.ods",
			zipOf(t, "content.xml", `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row>`),
			"Cell A Cell B",
		},
	}
	l := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			doc, err := l.Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if doc.Text != tt.want {
				t.Errorf("Text = %q, want %q", doc.Text, tt.want)
			}
			if doc.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", doc.SourcePath, path)
			}
		})
	}
}

// pdfOf builds a PDF whose xref table points at the given objects, numbered from 1.
func pdfOf(objects ...string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestLoad_MalformedPDFObject(t *testing.T) {
	// The page tree's Kids array is never closed.
	content := pdfOf(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	)
	path := writeFile(t, "broken.pdf", content)

	_, err := NewLoader().Load(path)
	if !errors.Is(err, models.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
}

func TestLoad_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	path := filepath.Join(t.TempDir(), "data.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	doc, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Text != "Title\nValue 1\tValue 2" {
		t.Errorf("Text = %q", doc.Text)
	}
}

func TestLoad_Errors(t *testing.T) {
	l := NewLoader()
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.txt") }},
		{"unsupported extension", func(t *testing.T) string { return writeFile(t, "a.xyz", []byte("raw")) }},
		{"whitespace only", func(t *testing.T) string { return writeFile(t, "a.txt", []byte(" \n\t ")) }},
		{"docx not a zip", func(t *testing.T) string { return writeFile(t, "a.docx", []byte("plain")) }},
		{"docx without body", func(t *testing.T) string {
			return writeFile(t, "a.docx", zipOf(t, "docProps/core.xml", "<x/>"))
		}},
		{"pptx without slides", func(t *testing.T) string {
			return writeFile(t, "a.pptx", zipOf(t, "ppt/slides/other.xml", "<x/>"))
		}},
		{"corrupt pdf", func(t *testing.T) string { return writeFile(t, "a.pdf", []byte("not a pdf")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(tt.path(t))
			if !errors.Is(err, models.ErrLoad) {
				t.Fatalf("err = %v, want ErrLoad", err)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	l := NewLoader()
	for _, p := range []string{"a.txt", "b.PDF", "c.docx", "d.odt", "e.rtf", "f.xlsx", "g.csv"} {
		if !l.Supported(p) {
			t.Errorf("Supported(%q) = false", p)
		}
	}
	for _, p := range []string{"a.exe", "b", "c.png"} {
		if l.Supported(p) {
			t.Errorf("Supported(%q) = true", p)
		}
	}
}

func TestExtensionsSorted(t *testing.T) {
	exts := Extensions()
	for i := 1; i < len(exts); i++ {
		if exts[i-1] >= exts[i] {
			t.Fatalf("Extensions not sorted: %v", exts)
		}
	}
}
