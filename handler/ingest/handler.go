// Package ingest adapts SNS-delivered WhatsApp webhook notifications
// into raw-message rows, one per inbound message.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"whatsapp-connect-chat/internal/domain"
)

// RawWriter persists one buffered inbound message.
type RawWriter interface {
	Put(ctx context.Context, rec domain.RawMessageRecord) error
}

type Handler struct {
	store  RawWriter
	logger *slog.Logger
}

func NewHandler(store RawWriter) (*Handler, error) {
	if store == nil {
		return nil, errors.New("ingest: raw writer must not be nil")
	}
	return &Handler{store: store, logger: slog.Default()}, nil
}

// notification is the envelope the social-messaging service publishes
// to SNS. The webhook entry itself arrives as a JSON string.
type notification struct {
	Context              map[string]any `json:"context"`
	WhatsAppWebhookEntry string         `json:"whatsAppWebhookEntry"`
}

type webhookEntry struct {
	ID      string `json:"id"`
	Changes []struct {
		Field string `json:"field"`
		Value struct {
			MessagingProduct string                    `json:"messaging_product"`
			Metadata         map[string]any            `json:"metadata"`
			Contacts         []domain.Contact          `json:"contacts"`
			Messages         []domain.RawMessageRecord `json:"messages"`
		} `json:"value"`
	} `json:"changes"`
}

type Response struct {
	StatusCode int `json:"statusCode"`
}

// Handle buffers every message of every webhook entry in the batch. A
// malformed record is logged and skipped; a store failure fails the
// invocation so the delivery is retried.
func (h *Handler) Handle(ctx context.Context, event events.SNSEvent) (Response, error) {
	for _, record := range event.Records {
		var n notification
		if err := json.Unmarshal([]byte(record.SNS.Message), &n); err != nil {
			h.logger.Error("malformed notification, skipping", "messageId", record.SNS.MessageID, "err", err)
			continue
		}
		var entry webhookEntry
		if err := json.Unmarshal([]byte(n.WhatsAppWebhookEntry), &entry); err != nil {
			h.logger.Error("malformed webhook entry, skipping", "messageId", record.SNS.MessageID, "err", err)
			continue
		}

		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				msg.Context = n.Context
				msg.Metadata = change.Value.Metadata
				msg.MessagingProduct = change.Value.MessagingProduct
				msg.Field = change.Field
				msg.Contact = contactFor(change.Value.Contacts, msg.From)

				if err := h.store.Put(ctx, msg); err != nil {
					return Response{}, fmt.Errorf("ingest: buffer message %s: %w", msg.ID, err)
				}
			}
		}
	}
	return Response{StatusCode: 200}, nil
}

// contactFor returns the contact snapshot matching the sender, or nil.
func contactFor(contacts []domain.Contact, waID string) *domain.Contact {
	for i := range contacts {
		if contacts[i].WaID == waID {
			return &contacts[i]
		}
	}
	return nil
}
