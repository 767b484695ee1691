// Package ocr extracts text from PDF documents using Google Cloud Vision API.
//
// The pipeline treats OCR as a best-effort collaborator: a page that cannot
// be recognized contributes empty text rather than failing the document, and
// a document with no readable text at all still returns an empty result for
// downstream extraction to flag.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous processing
package ocr

import (
	"context"
	"io"
	"time"
)

// OCRService defines the interface for OCR text extraction services.
type OCRService interface {
	// ProcessPDF extracts text from a PDF document.
	// Returns the concatenated text of all pages in page order.
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)

	// ProcessPDFWithMetadata extracts text from a PDF document with
	// confidence and timing metadata.
	ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error)
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the extracted text of all pages, concatenated in page order.
	// Empty when the document contains no readable text.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// FailedPages is the number of pages that could not be recognized and
	// contributed empty text.
	FailedPages int `json:"failed_pages"`

	// Confidence is the average confidence score across all detected text (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}
