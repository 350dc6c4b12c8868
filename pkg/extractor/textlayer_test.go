package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dtnitsch/lda-transparency/models"
)

const fixturePDF = "testdata/footpath.pdf"

func TestPDFTextLayer_Read(t *testing.T) {
	content, err := PDFTextLayer{}.Read(fixturePDF)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(content.Pages) != 2 {
		t.Fatalf("len(Pages) = %d, want 2", len(content.Pages))
	}
	if !strings.Contains(content.Pages[0], "We discussed footpath widening near Mall Road.") {
		t.Errorf("page 1 = %q", content.Pages[0])
	}
	if !strings.Contains(content.Pages[1], "Second page parking") {
		t.Errorf("page 2 = %q", content.Pages[1])
	}
	if len(content.UnreadablePages) != 0 {
		t.Errorf("UnreadablePages = %v", content.UnreadablePages)
	}
	if content.Title != "Pedestrian Facilities Notice" {
		t.Errorf("Title = %q", content.Title)
	}
	if content.Author != "Lahore Development Authority" {
		t.Errorf("Author = %q", content.Author)
	}
}

func TestPDFTextLayer_ReadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\nnot really a pdf"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := PDFTextLayer{}.Read(path)
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) || extractErr.Code != models.ReasonCorrupt {
		t.Errorf("Read() error = %v, want corrupt ExtractionError", err)
	}
}

func TestExtract_RealTextLayer(t *testing.T) {
	// 39 and 17 alphanumeric characters average 28 per page.
	router := NewRouter(testOptions(20), PDFTextLayer{}, nil, nil)
	res, err := router.Extract(context.Background(), Request{Path: fixturePDF})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Mode != models.ModeSearchable {
		t.Errorf("Mode = %s, want searchable", res.Mode)
	}
	if res.Density != 28 {
		t.Errorf("Density = %v, want 28", res.Density)
	}
	if res.PageCount != 2 || res.Title != "Pedestrian Facilities Notice" {
		t.Errorf("PageCount = %d, Title = %q", res.PageCount, res.Title)
	}
	if len(res.Pages) != 2 || !strings.Contains(res.Pages[0].Text, "footpath") || res.Pages[0].Source != models.SourceMachine {
		t.Errorf("Pages = %+v", res.Pages)
	}

	// Above the document's density it is scanned, and without OCR backends
	// that is retryable rather than a failure.
	sparse := NewRouter(testOptions(50), PDFTextLayer{}, nil, nil)
	if _, err := sparse.Extract(context.Background(), Request{Path: fixturePDF}); !IsRetryable(err) {
		t.Errorf("Extract() error = %v, want retryable backend error", err)
	}
}
