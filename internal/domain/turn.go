package domain

import "encoding/json"

// TurnEntry is one message inside an aggregated turn. Only the
// allow-listed webhook fields are projected; bookkeeping attributes from
// the raw buffer (contact snapshot, metadata, context) live on the turn.
type TurnEntry struct {
	From        string           `json:"from"`
	ID          string           `json:"id"`
	Timestamp   EpochSeconds     `json:"timestamp"`
	Type        MessageType      `json:"type"`
	Text        *TextPayload     `json:"text"`
	Audio       *MediaPayload    `json:"audio,omitempty"`
	Image       *MediaPayload    `json:"image,omitempty"`
	Video       *MediaPayload    `json:"video,omitempty"`
	Document    *MediaPayload    `json:"document,omitempty"`
	Sticker     *MediaPayload    `json:"sticker,omitempty"`
	Location    *LocationPayload `json:"location,omitempty"`
	Contacts    json.RawMessage  `json:"contacts,omitempty"`
	Interactive map[string]any   `json:"interactive,omitempty"`
	Reaction    *ReactionPayload `json:"reaction,omitempty"`
}

// Media returns the media payload for the entry's type, or nil.
func (e *TurnEntry) Media() *MediaPayload {
	switch e.Type {
	case MessageTypeAudio:
		return e.Audio
	case MessageTypeImage:
		return e.Image
	case MessageTypeVideo:
		return e.Video
	case MessageTypeDocument:
		return e.Document
	case MessageTypeSticker:
		return e.Sticker
	}
	return nil
}

// AggregatedTurn is the output of one aggregation group: shared
// conversation metadata plus the chronologically ordered, run-merged
// message entries. Transient; handed to the router and never persisted.
type AggregatedTurn struct {
	MessagingProduct string         `json:"messaging_product"`
	Metadata         map[string]any `json:"metadata"`
	Context          map[string]any `json:"context"`
	Field            string         `json:"field"`
	Contacts         []Contact      `json:"contacts"`
	Messages         []TurnEntry    `json:"messages"`
}

// PhoneNumberID returns the origin endpoint id from the turn metadata.
func (t *AggregatedTurn) PhoneNumberID() string {
	if v, ok := t.Metadata["phone_number_id"].(string); ok {
		return v
	}
	return ""
}

// CustomerName returns the first contact profile name, or "NN" when the
// webhook carried no profile.
func (t *AggregatedTurn) CustomerName() string {
	for _, c := range t.Contacts {
		if c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	return "NN"
}

// Attachment is a downloaded media binary under processing.
type Attachment struct {
	Content  []byte
	MimeType string
	Filename string
	// Location is the s3://bucket/key mirror of the binary, used by the
	// transcode and transcription side-channels.
	Location string
}

// TurnMessage is a single inbound unit under processing by the router.
// Mutated in place as transcriptions are attached; discarded after the
// turn completes.
type TurnMessage struct {
	From          string
	PhoneNumberID string
	Entry         TurnEntry
	Attachment    *Attachment
	Transcription string
	CustomerName  string
}

// Text returns the textual content of the message, or the media caption
// when the entry is a captioned media message.
func (m *TurnMessage) Text() string {
	if m.Entry.Text != nil && m.Entry.Text.Body != "" {
		return m.Entry.Text.Body
	}
	if media := m.Entry.Media(); media != nil {
		return media.Caption
	}
	return ""
}
