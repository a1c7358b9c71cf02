package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultBodyPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	openDocumentBody    = "content.xml"
)

var (
	// Text runs; attributes such as xml:space="preserve" are allowed.
	wordRunRe  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	wordParaRe = regexp.MustCompile(`</w:p>`)
	drawRunRe  = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfTextRe  = regexp.MustCompile(`<text:(?:p|h|span)[^>]*>([^<]*)</text:(?:p|h|span)>`)

	// The main document part may appear with its attributes in either order.
	mainPartRe = regexp.MustCompile(`<Override[^>]*(?:PartName="([^"]+)"[^>]*ContentType="` +
		regexp.QuoteMeta(docxMainContentType) + `"|ContentType="` +
		regexp.QuoteMeta(docxMainContentType) + `"[^>]*PartName="([^"]+)")`)

	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

func openZip(content []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip archive: %w", err)
	}
	return zr, nil
}

// readEntry returns the bytes of the named archive member, or nil when absent.
func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// joinRuns collects the first submatch of every re match, trimmed and space separated.
func joinRuns(re *regexp.Regexp, xml string) string {
	var parts []string
	for _, m := range re.FindAllStringSubmatch(xml, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// docxText extracts word runs, one line per paragraph. The body part is located via
// [Content_Types].xml and defaults to word/document.xml.
func docxText(_ string, content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	bodyPath := docxDefaultBodyPath
	types, err := readEntry(zr, contentTypesPath)
	if err != nil {
		return "", err
	}
	if m := mainPartRe.FindSubmatch(types); m != nil {
		part := string(m[1])
		if part == "" {
			part = string(m[2])
		}
		bodyPath = strings.TrimPrefix(part, "/")
	}
	body, err := readEntry(zr, bodyPath)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("%s not found", bodyPath)
	}
	var paras []string
	for _, p := range wordParaRe.Split(string(body), -1) {
		if line := joinRuns(wordRunRe, p); line != "" {
			paras = append(paras, line)
		}
	}
	return strings.Join(paras, "\n"), nil
}

// pptxText extracts drawing text runs slide by slide in slide-number order, one line per slide.
func pptxText(_ string, content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideNameRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, name: f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var lines []string
	for _, s := range slides {
		data, err := readEntry(zr, s.name)
		if err != nil {
			return "", err
		}
		if line := joinRuns(drawRunRe, string(data)); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// openDocumentText extracts paragraphs, headings and spans from an OpenDocument
// presentation or spreadsheet in document order.
func openDocumentText(_ string, content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", err
	}
	body, err := readEntry(zr, openDocumentBody)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("%s not found", openDocumentBody)
	}
	return joinRuns(odfTextRe, string(body)), nil
}
