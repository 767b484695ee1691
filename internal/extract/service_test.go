package extract

import (
	"context"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/ocr"
)

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			"clean json",
			`{"Invoice Number": "INV-1"}`,
			map[string]any{"Invoice Number": "INV-1"},
		},
		{
			"fenced json",
			"```json\n{\"Invoice Number\": \"INV-1\"}\n```",
			map[string]any{"Invoice Number": "INV-1"},
		},
		{
			"fence without language tag",
			"```\n{\"Total Amount\": \"100\"}\n```",
			map[string]any{"Total Amount": "100"},
		},
		{
			"prose around the object",
			"Sure! Here is the JSON: {\"Total Amount\": \"100\"} Hope that helps.",
			map[string]any{"Total Amount": "100"},
		},
		{
			"prose plus fence",
			"Sure! ```json\n{\"Total Amount\": \"100\"}\n```",
			map[string]any{"Total Amount": "100"},
		},
		{
			"hopeless output degrades to empty",
			"I could not find any invoice data in this document.",
			map[string]any{},
		},
		{
			"empty string",
			"",
			map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeModelJSON(tt.input))
		})
	}
}

func TestCleanAmountValues(t *testing.T) {
	m := map[string]any{
		"Total Amount": "$1,200.00",
		"Tax Amount":   " 200.00 ",
		"Subtotal":     nil,
		"Vendor Name":  "$ign Co", // non-amount keys untouched
	}
	cleanAmountValues(m)
	assert.Equal(t, "1200.00", m["Total Amount"])
	assert.Equal(t, "200.00", m["Tax Amount"])
	assert.Nil(t, m["Subtotal"])
	assert.Equal(t, "$ign Co", m["Vendor Name"])
}

// fakeOCR returns canned text for any document.
type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ProcessPDF(ctx context.Context, r io.Reader) (string, error) {
	return f.text, f.err
}

func (f *fakeOCR) ProcessPDFWithMetadata(ctx context.Context, r io.Reader) (*ocr.OCRResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.OCRResult{Text: f.text, PageCount: 1}, nil
}

// fakeChat returns a canned model response.
type fakeChat struct {
	content string
	err     error
	gotReq  openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func TestExtractHappyPath(t *testing.T) {
	chat := &fakeChat{content: `{
		"Invoice Number": "INV-500",
		"Vendor Name": "Acme",
		"Total Amount": "1200.00",
		"Tax Amount": "200.00",
		"Invoice Date": "2025-03-01",
		"Currency": "USD"
	}`}
	svc := NewServiceWithDeps(&fakeOCR{text: "Invoice INV-500 from Acme"}, chat, Config{Model: "gpt-4o-mini"})

	f, err := svc.Extract(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)

	assert.Equal(t, "INV-500", f.InvoiceNumber)
	assert.Equal(t, "Acme", f.VendorName)
	assert.Equal(t, "USD", f.Currency)
	require.NotNil(t, f.TotalAmount)
	assert.Equal(t, "1200", f.TotalAmount.String())
	require.NotNil(t, f.InvoiceDate)
	assert.Equal(t, "2025-03-01", f.InvoiceDate.Format("2006-01-02"))

	// the document text must reach the model
	require.Len(t, chat.gotReq.Messages, 2)
	assert.Contains(t, chat.gotReq.Messages[1].Content, "Invoice INV-500 from Acme")
}

func TestExtractMalformedModelOutput(t *testing.T) {
	// fenced, prose-wrapped, and missing almost every key
	chat := &fakeChat{content: "Sure! ```json\n{\"Total Amount\": \"100\"}\n```"}
	svc := NewServiceWithDeps(&fakeOCR{text: "some text"}, chat, Config{})

	f, err := svc.Extract(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)

	require.NotNil(t, f.TotalAmount)
	assert.Equal(t, "100", f.TotalAmount.String())
	assert.Empty(t, f.InvoiceNumber)
	assert.Nil(t, f.InvoiceDate)
	assert.Empty(t, f.Currency)
	assert.Equal(t, "Vendor", f.LineDescription)
}

func TestExtractEmptyDocumentStillExtracts(t *testing.T) {
	chat := &fakeChat{content: "{}"}
	svc := NewServiceWithDeps(&fakeOCR{text: ""}, chat, Config{})

	f, err := svc.Extract(context.Background(), []byte("%PDF-fake"))
	require.NoError(t, err)
	assert.Nil(t, f.TotalAmount)
	assert.Empty(t, f.InvoiceNumber)
}

func TestExtractOCRFailure(t *testing.T) {
	svc := NewServiceWithDeps(&fakeOCR{err: ocr.ErrInvalidPDF}, &fakeChat{}, Config{})

	_, err := svc.Extract(context.Background(), []byte("not a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrInvalidPDF)
}
