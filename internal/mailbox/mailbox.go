// Package mailbox reads invoice emails from an IMAP mailbox.
//
// It exposes a small client abstraction over the IMAP session plus pure
// helpers for sender filtering and PDF attachment extraction, so the
// pipeline can be tested without a live server.
package mailbox

import (
	"strings"
	"time"
)

// Attachment is one PDF file pulled out of a message.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is the subset of an email the pipeline consumes.
type Message struct {
	UID         uint32
	MessageID   string
	Subject     string
	From        string
	Date        time.Time
	Attachments []Attachment
}

// Client is an open IMAP session scoped to one folder.
//
// Mutating calls (MarkSeen, Archive, Delete) are the pipeline's commit
// point: they run only after every attachment of a message has been
// handled, so a crash mid-message leaves it unseen for the next pass.
type Client interface {
	// EnsureFolder creates the named folder if the server does not have it.
	EnsureFolder(name string) error

	// ListUnseen returns the UIDs of messages without the \Seen flag.
	ListUnseen() ([]uint32, error)

	// Fetch downloads one message and extracts its PDF attachments.
	Fetch(uid uint32) (*Message, error)

	// MarkSeen sets the \Seen flag.
	MarkSeen(uid uint32) error

	// Archive copies the message into the named folder.
	Archive(uid uint32, folder string) error

	// Delete flags the message \Deleted and expunges it.
	Delete(uid uint32) error

	// Close logs out and drops the connection.
	Close() error
}

// SenderAllowed reports whether the sender address passes the allow-list.
// Matching is case-insensitive on the domain part: an entry matches its own
// domain and any subdomain of it. An empty allow-list admits everyone.
func SenderAllowed(from string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	at := strings.LastIndex(from, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(from[at+1:]))
	domain = strings.TrimSuffix(domain, ">")
	if domain == "" {
		return false
	}

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
