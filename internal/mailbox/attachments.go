package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	// Registers decoders for legacy charsets seen in vendor emails.
	_ "github.com/emersion/go-message/charset"
)

// ExtractPDFAttachments walks the MIME tree of a raw RFC 5322 message and
// returns every part whose filename ends in .pdf, whether it is declared as
// an attachment or inline. Vendors routinely send invoices as inline parts.
//
// A malformed part ends the walk; the attachments decoded before it are
// returned alongside the error so the caller can still process them.
func ExtractPDFAttachments(raw []byte) ([]Attachment, error) {
	const op = "ExtractPDFAttachments"

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse message: %w", op, err)
	}

	var attachments []Attachment
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return attachments, nil
		}
		if err != nil {
			return attachments, fmt.Errorf("%s: failed to read part: %w", op, err)
		}

		filename := partFilename(part)
		if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return attachments, fmt.Errorf("%s: failed to read %q: %w", op, filename, err)
		}
		attachments = append(attachments, Attachment{Filename: filename, Data: data})
	}
}

func partFilename(part *mail.Part) string {
	switch h := part.Header.(type) {
	case *mail.AttachmentHeader:
		if name, err := h.Filename(); err == nil {
			return name
		}
	case *mail.InlineHeader:
		// go-message defines Filename only on AttachmentHeader; both header
		// types embed the same message.Header, so reuse that implementation.
		ah := mail.AttachmentHeader{Header: h.Header}
		if name, err := ah.Filename(); err == nil {
			return name
		}
	}
	return ""
}
