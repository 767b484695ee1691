// Package pdfutil preflights PDF attachments before they are sent to OCR.
package pdfutil

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info describes a validated PDF attachment.
type Info struct {
	PageCount int
}

// Validate checks that data is a readable PDF and returns its page count.
// Validation is relaxed: vendor invoice PDFs are frequently produced by
// sloppy generators and strict mode rejects too many of them.
func Validate(data []byte) (*Info, error) {
	const op = "Validate"

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	rctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: not a readable PDF: %w", op, err)
	}

	return &Info{PageCount: rctx.PageCount}, nil
}
