package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const profileHost = "github.com"

var (
	textURLPattern     = regexp.MustCompile(`https?://[^\s)>\]]+`)
	accountPattern     = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	docxHyperlinkField = regexp.MustCompile(`HYPERLINK\s+(?:&quot;|")([^"&]+)(?:&quot;|")`)
	docxParagraphEnd   = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	docxFieldCode      = regexp.MustCompile(`<w:instrText[^>]*>[^<]*</w:instrText>`)
	xmlTag             = regexp.MustCompile(`<[^>]+>`)
)

const segmentJunk = ".,;:!?)]}>(\"'`*|"

// NormalizeProfileURL returns the canonical https://github.com/<account> form
// of an absolute link, tolerating whitespace and punctuation left behind by
// text recognition. Links that do not point at an account return false.
func NormalizeProfileURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", false
	}

	idx := strings.Index(lower, profileHost)
	if idx < 0 {
		return "", false
	}
	schemeEnd := strings.Index(lower, "://") + len("://")
	if host := strings.TrimSpace(lower[schemeEnd:idx]); host != "" && host != "www." {
		return "", false
	}

	rest := strings.TrimLeft(s[idx+len(profileHost):], " \t")
	if !strings.HasPrefix(rest, "/") {
		return "", false
	}
	rest = strings.TrimLeft(rest, "/ \t\r\n")
	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		rest = rest[:end]
	}

	account := strings.Join(strings.Fields(rest), "")
	account = strings.Trim(account, segmentJunk)
	if !accountPattern.MatchString(account) {
		return "", false
	}
	return "https://" + profileHost + "/" + account, true
}

// FirstProfileURL returns the first candidate that normalizes to a profile.
func FirstProfileURL(candidates []string) string {
	for _, c := range candidates {
		if u, ok := NormalizeProfileURL(c); ok {
			return u
		}
	}
	return ""
}

// TextURLs scans recognized text for http(s) links.
func TextURLs(text string) []string {
	return textURLPattern.FindAllString(text, -1)
}

// MergeURLs keeps the first occurrence of every link, preserving group order.
func MergeURLs(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, u := range group {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// PDFLinks returns the URI targets of every link annotation in the document,
// in page order.
func PDFLinks(data []byte) (links []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			links, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		annots := page.V.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			annot := annots.Index(j)
			if annot.Key("Subtype").Name() != "Link" {
				continue
			}
			action := annot.Key("A")
			if action.Key("S").Name() != "URI" {
				continue
			}
			if uri := strings.TrimSpace(action.Key("URI").Text()); uri != "" {
				links = append(links, uri)
			}
		}
	}
	return MergeURLs(links), nil
}

// IsDocx reports whether data looks like an OOXML word document.
func IsDocx(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			return true
		}
	}
	return false
}

// DocxText returns the visible paragraph text of a word document together
// with the targets of its HYPERLINK fields.
func DocxText(data []byte) (string, []string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()

	var links []string
	for _, m := range docxHyperlinkField.FindAllStringSubmatch(content, -1) {
		links = append(links, html.UnescapeString(m[1]))
	}

	text := docxFieldCode.ReplaceAllString(content, "")
	text = docxParagraphEnd.ReplaceAllString(text, "\n")
	text = xmlTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), MergeURLs(links), nil
}
