package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MessageType is the closed set of inbound WhatsApp message types.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeImage       MessageType = "image"
	MessageTypeVideo       MessageType = "video"
	MessageTypeDocument    MessageType = "document"
	MessageTypeSticker     MessageType = "sticker"
	MessageTypeLocation    MessageType = "location"
	MessageTypeContacts    MessageType = "contacts"
	MessageTypeInteractive MessageType = "interactive"
	MessageTypeReaction    MessageType = "reaction"
)

// EpochSeconds is a message timestamp. The webhook delivers it as a JSON
// string while the raw-messages table stores it as a number; both forms
// must decode.
type EpochSeconds int64

func (e *EpochSeconds) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("domain: timestamp %q is not numeric: %w", v, err)
		}
		*e = EpochSeconds(n)
	case float64:
		*e = EpochSeconds(int64(v))
	default:
		return fmt.Errorf("domain: timestamp has unsupported type %T", raw)
	}
	return nil
}

func (e EpochSeconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(e), 10)), nil
}

// TextPayload is the body of a text message.
type TextPayload struct {
	Body string `json:"body"`
}

// MediaPayload covers audio, image, video, document and sticker entries.
// The id references a downloadable media object in the channel API.
type MediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
	// Location is set once the binary has been mirrored to the media
	// bucket (s3://bucket/key).
	Location string `json:"location,omitempty"`
}

// LocationPayload is a shared-location message.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ReactionPayload is an emoji reaction to a prior message.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ContactProfile is the sender profile snapshot carried on webhook entries.
type ContactProfile struct {
	Name string `json:"name"`
}

// Contact pairs a WhatsApp id with its profile snapshot.
type Contact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

// RawMessageRecord is one inbound message as buffered in the raw-messages
// table: the webhook message fields plus the conversation metadata and
// context stamped on by the ingest path. Immutable once captured.
type RawMessageRecord struct {
	From             string           `json:"from"`
	ID               string           `json:"id"`
	Timestamp        EpochSeconds     `json:"timestamp"`
	Type             MessageType      `json:"type"`
	Text             *TextPayload     `json:"text,omitempty"`
	Audio            *MediaPayload    `json:"audio,omitempty"`
	Image            *MediaPayload    `json:"image,omitempty"`
	Video            *MediaPayload    `json:"video,omitempty"`
	Document         *MediaPayload    `json:"document,omitempty"`
	Sticker          *MediaPayload    `json:"sticker,omitempty"`
	Location         *LocationPayload `json:"location,omitempty"`
	Contacts         json.RawMessage  `json:"contacts,omitempty"`
	Interactive      map[string]any   `json:"interactive,omitempty"`
	Reaction         *ReactionPayload `json:"reaction,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Context          map[string]any   `json:"context,omitempty"`
	MessagingProduct string           `json:"messaging_product,omitempty"`
	Field            string           `json:"field,omitempty"`
	Contact          *Contact         `json:"contact,omitempty"`
}

// Media returns the media payload for the record's type, or nil for
// non-media types.
func (r *RawMessageRecord) Media() *MediaPayload {
	switch r.Type {
	case MessageTypeAudio:
		return r.Audio
	case MessageTypeImage:
		return r.Image
	case MessageTypeVideo:
		return r.Video
	case MessageTypeDocument:
		return r.Document
	case MessageTypeSticker:
		return r.Sticker
	}
	return nil
}
