// Package whatsapp is the channel client: outbound status markers,
// reactions and text replies through AWS End User Messaging Social, and
// inbound media retrieval mirrored to the media bucket.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/socialmessaging"
)

// socialAPI is the minimal End User Messaging Social interface required
// by Service.
type socialAPI interface {
	SendWhatsAppMessage(ctx context.Context, in *socialmessaging.SendWhatsAppMessageInput, optFns ...func(*socialmessaging.Options)) (*socialmessaging.SendWhatsAppMessageOutput, error)
}

// Service sends Meta message payloads through the social-messaging API.
// The origination phone-number id is per-call because one deployment can
// serve several numbers.
type Service struct {
	social     socialAPI
	apiVersion string
	media      *MediaFetcher
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithMediaFetcher enables inbound media retrieval (see media.go).
func WithMediaFetcher(m *MediaFetcher) Option {
	return func(s *Service) { s.media = m }
}

// NewService creates a channel client.
func NewService(social socialAPI, apiVersion string, opts ...Option) (*Service, error) {
	if social == nil {
		return nil, errors.New("whatsapp: social api must not be nil")
	}
	if apiVersion == "" {
		apiVersion = "v23.0"
	}
	s := &Service{social: social, apiVersion: apiVersion}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) send(ctx context.Context, originationID string, payload map[string]any) (string, error) {
	if originationID == "" {
		return "", errors.New("whatsapp: origination phone number id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal payload: %w", err)
	}
	out, err := s.social.SendWhatsAppMessage(ctx, &socialmessaging.SendWhatsAppMessageInput{
		Message:                  body,
		MetaApiVersion:           &s.apiVersion,
		OriginationPhoneNumberId: &originationID,
	})
	if err != nil {
		return "", fmt.Errorf("whatsapp: send message: %w", err)
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

// MarkAsRead marks an inbound message as read. Idempotent upstream.
func (s *Service) MarkAsRead(ctx context.Context, originationID, messageID string) error {
	_, err := s.send(ctx, originationID, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	return err
}

// React attaches an emoji reaction marker to an inbound message.
func (s *Service) React(ctx context.Context, originationID, to, messageID, emoji string) error {
	_, err := s.send(ctx, originationID, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "reaction",
		"reaction": map[string]any{
			"message_id": messageID,
			"emoji":      emoji,
		},
	})
	return err
}

// SendText sends a plain text reply to the given number.
func (s *Service) SendText(ctx context.Context, originationID, to, body string) error {
	_, err := s.send(ctx, originationID, map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	})
	return err
}

// SendTemplate sends a pre-built Meta template payload (agent-initiated
// messages). The payload must already carry template name, language and
// components; the destination is injected by the caller.
func (s *Service) SendTemplate(ctx context.Context, originationID string, payload map[string]any) (string, error) {
	return s.send(ctx, originationID, payload)
}
