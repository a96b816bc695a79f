package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultDocument = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wtTag matches <w:t> runs with any attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// overrideTag matches one Override element of [Content_Types].xml.
var overrideTag = regexp.MustCompile(`<Override\s[^>]*>`)

var (
	partNameAttr    = regexp.MustCompile(`PartName="([^"]+)"`)
	contentTypeAttr = regexp.MustCompile(`ContentType="([^"]+)"`)
)

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// docxMainPart returns the main document part named in [Content_Types].xml, without the
// leading slash, or the default part when none is declared.
func docxMainPart(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			break
		}
		for _, tag := range overrideTag.FindAllString(string(data), -1) {
			ct := contentTypeAttr.FindStringSubmatch(tag)
			pn := partNameAttr.FindStringSubmatch(tag)
			if len(ct) > 1 && len(pn) > 1 && ct[1] == docxMainContentType {
				return strings.TrimPrefix(pn[1], "/")
			}
		}
	}
	return docxDefaultDocument
}

// extractDOCX joins the text of every <w:t> run of the main document part. Matching runs
// directly keeps text from paragraphs that carry attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := docxMainPart(zr)
	for _, f := range zr.File {
		if f.Name != part {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("extract DOCX: read %s: %w", part, err)
		}
		runs := wtTag.FindAllStringSubmatch(string(data), -1)
		texts := make([]string, 0, len(runs))
		for _, r := range runs {
			if t := strings.TrimSpace(r[1]); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, " "), nil
	}
	return "", fmt.Errorf("extract DOCX: %s not found", part)
}
