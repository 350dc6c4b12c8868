package extractor

import (
	"fmt"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/ledongthuc/pdf"
)

// TextContent is the raw text layer of a document, one entry per page.
type TextContent struct {
	Pages  []string
	Title  string
	Author string
	// UnreadablePages lists pages whose text layer could not be decoded;
	// their entry in Pages is empty.
	UnreadablePages []int
}

// TextLayer reads the embedded text of every page of a document.
type TextLayer interface {
	Read(path string) (*TextContent, error)
}

// PDFTextLayer reads text layers with github.com/ledongthuc/pdf.
type PDFTextLayer struct{}

// Read opens the PDF and decodes every page. Malformed files make the parser
// panic; that is reported as a corrupt document.
func (PDFTextLayer) Read(path string) (content *TextContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = &ExtractionError{Path: path, Code: models.ReasonCorrupt, Err: fmt.Errorf("pdf parser: %v", r)}
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Code: models.ReasonCorrupt, Err: err}
	}
	defer f.Close()

	n := reader.NumPage()
	content = &TextContent{Pages: make([]string, n)}
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			content.UnreadablePages = append(content.UnreadablePages, i)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			content.UnreadablePages = append(content.UnreadablePages, i)
			continue
		}
		content.Pages[i-1] = text
	}

	info := reader.Trailer().Key("Info")
	content.Title = info.Key("Title").Text()
	content.Author = info.Key("Author").Text()
	return content, nil
}
