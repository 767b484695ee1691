package mailbox

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"invoiceflow/internal/logger"
)

// IMAPClient is the live implementation of Client on top of an IMAP4rev1
// session. One instance corresponds to one logged-in connection with one
// selected folder; it is not safe for concurrent use.
type IMAPClient struct {
	conn *imapclient.Client
	log  zerolog.Logger
}

// Dial connects with implicit TLS, logs in, and selects the given folder.
func Dial(addr, username, password, folder string) (*IMAPClient, error) {
	const op = "Dial"

	conn, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect to %s: %w", op, addr, err)
	}

	if err := conn.Login(username, password).Wait(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: login failed for %s: %w", op, username, err)
	}

	if _, err := conn.Select(folder, nil).Wait(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: failed to select folder %q: %w", op, folder, err)
	}

	log := logger.WithComponent("mailbox")
	log.Debug().Str("addr", addr).Str("folder", folder).Msg("IMAP session established")

	return &IMAPClient{conn: conn, log: log}, nil
}

func (c *IMAPClient) EnsureFolder(name string) error {
	const op = "EnsureFolder"

	err := c.conn.Create(name, nil).Wait()
	if err == nil {
		c.log.Info().Str("folder", name).Msg("Created IMAP folder")
		return nil
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) && imapErr.Code == imap.ResponseCodeAlreadyExists {
		return nil
	}
	return fmt.Errorf("%s: failed to create folder %q: %w", op, name, err)
}

func (c *IMAPClient) ListUnseen() ([]uint32, error) {
	const op = "ListUnseen"

	data, err := c.conn.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%s: search failed: %w", op, err)
	}

	var uids []uint32
	for _, uid := range data.AllUIDs() {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

func (c *IMAPClient) Fetch(uid uint32) (*Message, error) {
	const op = "Fetch"

	bodySection := &imap.FetchItemBodySection{}
	msgs, err := c.conn.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("%s: fetch of uid %d failed: %w", op, uid, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s: uid %d not found", op, uid)
	}

	buf := msgs[0]
	msg := &Message{UID: uid}
	if env := buf.Envelope; env != nil {
		msg.MessageID = env.MessageID
		msg.Subject = env.Subject
		msg.Date = env.Date
		if len(env.From) > 0 {
			msg.From = env.From[0].Addr()
		}
	}

	raw := buf.FindBodySection(bodySection)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: uid %d has no body", op, uid)
	}

	attachments, err := ExtractPDFAttachments(raw)
	if err != nil {
		// A broken MIME part should not discard attachments already
		// decoded from earlier parts of the same message.
		c.log.Warn().Err(err).Uint32("uid", uid).Msg("Partial MIME parse of message")
	}
	msg.Attachments = attachments

	return msg, nil
}

func (c *IMAPClient) MarkSeen(uid uint32) error {
	const op = "MarkSeen"

	err := c.conn.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("%s: failed to flag uid %d: %w", op, uid, err)
	}
	return nil
}

func (c *IMAPClient) Archive(uid uint32, folder string) error {
	const op = "Archive"

	if _, err := c.conn.Copy(imap.UIDSetNum(imap.UID(uid)), folder).Wait(); err != nil {
		return fmt.Errorf("%s: failed to copy uid %d to %q: %w", op, uid, folder, err)
	}
	return nil
}

func (c *IMAPClient) Delete(uid uint32) error {
	const op = "Delete"

	err := c.conn.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("%s: failed to flag uid %d deleted: %w", op, uid, err)
	}

	if err := c.conn.Expunge().Close(); err != nil {
		return fmt.Errorf("%s: expunge failed: %w", op, err)
	}
	return nil
}

func (c *IMAPClient) Close() error {
	if err := c.conn.Logout().Wait(); err != nil {
		return c.conn.Close()
	}
	return nil
}
