package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"invoiceflow/internal/logger"
)

// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
const MaxFileSizeBytes = 20 * 1024 * 1024

// GoogleVisionOCRService implements OCRService using Google Cloud Vision API.
type GoogleVisionOCRService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionOCRService creates a new OCR service with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionOCRService(ctx context.Context) (OCRService, error) {
	const op = "NewGoogleVisionOCRService"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &GoogleVisionOCRService{
		client: client,
		log:    logger.WithComponent("ocr"),
	}, nil
}

// NewGoogleVisionOCRServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionOCRServiceWithClient(client *vision.ImageAnnotatorClient) OCRService {
	return &GoogleVisionOCRService{
		client: client,
		log:    logger.WithComponent("ocr"),
	}
}

// ProcessPDF extracts text from a PDF document.
func (g *GoogleVisionOCRService) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := g.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessPDFWithMetadata extracts text from a PDF document with additional metadata.
func (g *GoogleVisionOCRService) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "ProcessPDFWithMetadata"
	startTime := time.Now()

	pdfBytes, err := io.ReadAll(pdfData)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}

	if len(pdfBytes) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("file size: %d bytes", len(pdfBytes)))
	}

	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{
						Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
					},
				},
				Pages: nil, // all pages
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	result := g.processVisionResponse(fileResp)
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	return result, nil
}

// processVisionResponse aggregates per-page text in page order. A page with
// an error contributes empty text instead of failing the document; an empty
// document yields an empty-text result, which downstream extraction turns
// into an all-null field set.
func (g *GoogleVisionOCRService) processVisionResponse(fileResp *visionpb.AnnotateFileResponse) *OCRResult {
	var allText strings.Builder
	var confidenceSum float32
	var confidenceCount int
	failedPages := 0
	pageCount := len(fileResp.Responses)

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			failedPages++
			g.log.Warn().
				Int("page", pageIdx+1).
				Str("error", page.Error.Message).
				Msg("Page failed OCR, contributing empty text")
			continue
		}

		if page.FullTextAnnotation == nil {
			continue
		}

		allText.WriteString(page.FullTextAnnotation.Text)

		for _, textAnnotation := range page.TextAnnotations {
			if textAnnotation.Confidence > 0 {
				confidenceSum += textAnnotation.Confidence
				confidenceCount++
			}
		}
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	return &OCRResult{
		Text:        allText.String(),
		PageCount:   pageCount,
		FailedPages: failedPages,
		Confidence:  avgConfidence,
	}
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
