package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/notesnap/notesnap-backend/internal/platform/gcp"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
)

// ChunkSeparator marks chunk boundaries in recombined PDF text so a
// reader of the combined output can see where a split happened.
const ChunkSeparator = "\n\n---\n\n"

// Extractor turns a downloaded note file into plain text. PDFs go through
// Document AI, split first when they exceed the per-call page limit;
// images go through Vision OCR.
type Extractor struct {
	log       *logger.Logger
	docOCR    gcp.DocumentOCR
	imgOCR    gcp.ImageOCR
	pageLimit int
}

func NewExtractor(log *logger.Logger, docOCR gcp.DocumentOCR, imgOCR gcp.ImageOCR) *Extractor {
	return &Extractor{
		log:       log.With("service", "ocr.Extractor"),
		docOCR:    docOCR,
		imgOCR:    imgOCR,
		pageLimit: DefaultPageLimit,
	}
}

func (e *Extractor) ExtractImage(ctx context.Context, img []byte) (string, error) {
	return e.imgOCR.OCRImageBytes(ctx, img)
}

func (e *Extractor) ExtractPDF(ctx context.Context, path string) (string, error) {
	pages, countErr := pageCount(path)
	if countErr == nil && pages > e.pageLimit {
		return e.extractChunked(ctx, path)
	}
	if countErr != nil {
		// Proceed unchunked; if the document turns out to be oversized the
		// page-limit retry below picks it up.
		e.log.Warn("pdf page count failed, attempting direct extraction",
			"file", filepath.Base(path), "error", countErr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", filepath.Base(path), err)
	}
	text, err := e.docOCR.ProcessBytes(ctx, data, "application/pdf")
	if err != nil {
		if gcp.IsPageLimitError(err) {
			e.log.Warn("ocr page limit hit without prior chunking, retrying chunked",
				"file", filepath.Base(path))
			return e.extractChunked(ctx, path)
		}
		return "", fmt.Errorf("pdf ocr %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// extractChunked OCRs each chunk independently and joins the results.
// A failing chunk is logged and skipped so one bad range does not sink the
// whole document, except when the failure is itself a page-limit error:
// that means the chunking is wrong and retrying cannot help.
func (e *Extractor) extractChunked(ctx context.Context, path string) (string, error) {
	chunks, err := SplitPDF(path, e.pageLimit)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		data, err := os.ReadFile(chunk)
		if err != nil {
			e.log.Warn("chunk read failed, skipping",
				"file", filepath.Base(chunk), "chunk", i+1, "of", len(chunks), "error", err)
			continue
		}
		text, err := e.docOCR.ProcessBytes(ctx, data, "application/pdf")
		if err != nil {
			if gcp.IsPageLimitError(err) {
				return "", fmt.Errorf("chunk %d/%d of %s still exceeds the ocr page limit: %w",
					i+1, len(chunks), filepath.Base(path), err)
			}
			e.log.Warn("chunk ocr failed, skipping",
				"file", filepath.Base(chunk), "chunk", i+1, "of", len(chunks), "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ChunkSeparator), nil
}
