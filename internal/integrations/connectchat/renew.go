package connectchat

import (
	"context"
	"fmt"
	"time"

	"whatsapp-connect-chat/internal/domain"
)

// SessionWriter is the session-store surface the renewal path needs.
type SessionWriter interface {
	Put(ctx context.Context, rec domain.SessionRecord) error
	Remove(ctx context.Context, contactID string) error
}

// Renewal describes how to re-establish a session when the active
// connection turns out to be expired: the identity to open the new chat
// with and the stale contact id to evict from the store.
type Renewal struct {
	Text         string
	CustomerID   string
	Channel      string
	Name         string
	SystemNumber string
	OldContactID string
}

// reopen establishes a replacement session and swaps the store record:
// the stale record is deleted by its session id before the new one is
// written, so two live records for one sender never coexist beyond the
// span of this call.
func (c *Client) reopen(ctx context.Context, store SessionWriter, r Renewal) (*Session, error) {
	session, err := c.StartChatAndStream(ctx, r.Text, r.CustomerID, r.Channel, r.Name, r.SystemNumber)
	if err != nil {
		return nil, fmt.Errorf("connectchat: renewal open: %w", err)
	}
	if r.OldContactID != "" {
		if err := store.Remove(ctx, r.OldContactID); err != nil {
			return nil, fmt.Errorf("connectchat: renewal evict stale record: %w", err)
		}
	}
	if err := store.Put(ctx, domain.SessionRecord{
		ContactID:        session.ContactID,
		CustomerID:       r.CustomerID,
		Channel:          r.Channel,
		ParticipantToken: session.ParticipantToken,
		ConnectionToken:  session.ConnectionToken,
		Name:             r.Name,
		SystemNumber:     r.SystemNumber,
		ExpiresAt:        time.Now().Add(c.chatDuration).Unix(),
	}); err != nil {
		return nil, fmt.Errorf("connectchat: renewal persist record: %w", err)
	}
	return session, nil
}

// SendTextRenewing sends text over the given connection, transparently
// re-establishing the session exactly once when the connection is
// expired. The replacement chat carries the text as its initial
// message, so the turn is delivered exactly once either way. A non-nil
// returned session signals that renewal occurred.
func (c *Client) SendTextRenewing(ctx context.Context, text, connectionToken string, store SessionWriter, r Renewal) (*Session, ErrorTag, error) {
	tag, err := c.SendText(ctx, text, connectionToken)
	if tag != TagAccessDenied {
		return nil, tag, err
	}

	c.logger.Info("connection expired, renewing session", "customerId", r.CustomerID)
	r.Text = text
	session, err := c.reopen(ctx, store, r)
	if err != nil {
		return nil, TagAccessDenied, err
	}
	return session, TagOK, nil
}

// AttachFileRenewing uploads an attachment, transparently renewing the
// session exactly once on an expired connection and replaying the
// upload through the new connection. Further failures are surfaced, not
// retried.
func (c *Client) AttachFileRenewing(ctx context.Context, content []byte, filename, mediaType, connectionToken string, store SessionWriter, r Renewal) (string, *Session, ErrorTag, error) {
	attachmentID, tag, err := c.AttachFile(ctx, content, filename, mediaType, connectionToken)
	if tag != TagAccessDenied {
		return attachmentID, nil, tag, err
	}

	c.logger.Info("connection expired during upload, renewing session", "customerId", r.CustomerID)
	session, err := c.reopen(ctx, store, r)
	if err != nil {
		return "", nil, TagAccessDenied, err
	}

	attachmentID, tag, err = c.AttachFile(ctx, content, filename, mediaType, session.ConnectionToken)
	return attachmentID, session, tag, err
}
