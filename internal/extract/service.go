// Package extract turns raw invoice document bytes into canonical fields.
//
// Extraction composes two collaborators: OCR renders the document to text,
// and a language model maps that text onto the canonical 16-key field set.
// The model's output is treated as untrusted — fences are stripped, partial
// JSON is recovered, amounts are re-cleaned — and whatever survives goes
// through fields.Normalize so the result is always a complete field set.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"invoiceflow/internal/fields"
	"invoiceflow/internal/logger"
	"invoiceflow/internal/ocr"
)

// Service extracts canonical invoice fields from a PDF document.
type Service interface {
	// Extract runs OCR and LLM extraction on a document. A document with no
	// extractable text yields an all-null field set rather than an error;
	// the caller decides whether that is worth keeping.
	Extract(ctx context.Context, documentBytes []byte) (fields.Fields, error)
}

// Config configures the extraction service.
type Config struct {
	Model       string  // OpenAI chat model
	Temperature float32 // 0 for deterministic extraction
}

// ChatCompleter is the slice of the OpenAI client the service uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GPTExtractionService implements Service with Google Vision OCR and an
// OpenAI chat model.
type GPTExtractionService struct {
	ocrService ocr.OCRService
	client     ChatCompleter
	config     Config
	log        zerolog.Logger
}

// NewService creates an extraction service with dependencies from environment.
func NewService(ctx context.Context) (Service, error) {
	const op = "NewService"

	ocrService, err := ocr.NewGoogleVisionOCRService(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create OCR service: %w", op, err)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%s: OPENAI_API_KEY environment variable is required", op)
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	return NewServiceWithDeps(ocrService, openai.NewClient(apiKey), Config{Model: model}), nil
}

// NewServiceWithDeps creates an extraction service with explicit dependencies.
func NewServiceWithDeps(ocrService ocr.OCRService, client ChatCompleter, config Config) Service {
	return &GPTExtractionService{
		ocrService: ocrService,
		client:     client,
		config:     config,
		log:        logger.WithComponent("extract"),
	}
}

// Extract implements Service.
func (s *GPTExtractionService) Extract(ctx context.Context, documentBytes []byte) (fields.Fields, error) {
	const op = "Extract"

	ocrResult, err := s.ocrService.ProcessPDFWithMetadata(ctx, bytes.NewReader(documentBytes))
	if err != nil {
		return fields.Fields{}, fmt.Errorf("%s: OCR failed: %w", op, err)
	}

	if ocrResult.Text == "" {
		s.log.Warn().
			Int("pages", ocrResult.PageCount).
			Msg("Document yielded no text; extraction will produce an all-null result")
	} else {
		s.log.Info().
			Int("text_length", len(ocrResult.Text)).
			Int("pages", ocrResult.PageCount).
			Int("failed_pages", ocrResult.FailedPages).
			Float32("avg_confidence", ocrResult.Confidence).
			Msg("OCR extraction completed")
	}

	raw, err := s.extractFieldsFromText(ctx, ocrResult.Text)
	if err != nil {
		return fields.Fields{}, fmt.Errorf("%s: model extraction failed: %w", op, err)
	}

	f := fields.Normalize(raw)
	if f.TotalAmount == nil {
		s.log.Warn().
			Str("invoice_number", f.InvoiceNumber).
			Msg("Extraction produced no total amount")
	}

	return f, nil
}

// extractFieldsFromText submits the document text to the model and decodes
// the response into a raw field mapping. Malformed output degrades to an
// empty mapping; only transport-level failures surface as errors.
func (s *GPTExtractionService) extractFieldsFromText(ctx context.Context, text string) (map[string]any, error) {
	const op = "extractFieldsFromText"

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(text),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", op, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: no response choices from model", op)
	}

	content := resp.Choices[0].Message.Content
	s.log.Debug().Str("response", content).Msg("Received model response")

	raw := decodeModelJSON(content)
	if len(raw) == 0 {
		s.log.Warn().Msg("Model output was not parsable JSON; degrading to empty field set")
	}
	cleanAmountValues(raw)

	return raw, nil
}
