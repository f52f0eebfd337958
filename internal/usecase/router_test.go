package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whatsapp-connect-chat/internal/domain"
	"whatsapp-connect-chat/internal/integrations/connectchat"
)

type mockMessenger struct {
	readIDs    []string
	readErr    error
	reactions  []string
	texts      []string
	fetchOut   *domain.Attachment
	fetchErr   error
	objectOut  []byte
	objectErr  error
	objectReqs []string
}

func (m *mockMessenger) MarkAsRead(_ context.Context, _, messageID string) error {
	m.readIDs = append(m.readIDs, messageID)
	return m.readErr
}

func (m *mockMessenger) React(_ context.Context, _, _, _ string, emoji string) error {
	m.reactions = append(m.reactions, emoji)
	return nil
}

func (m *mockMessenger) SendText(_ context.Context, _, _, body string) error {
	m.texts = append(m.texts, body)
	return nil
}

func (m *mockMessenger) FetchMedia(_ context.Context, _ *domain.MediaPayload) (*domain.Attachment, error) {
	return m.fetchOut, m.fetchErr
}

func (m *mockMessenger) GetS3FileContent(_ context.Context, location string) ([]byte, error) {
	m.objectReqs = append(m.objectReqs, location)
	return m.objectOut, m.objectErr
}

type mockSessions struct {
	records map[string]*domain.SessionRecord
	getErr  error
	puts    []domain.SessionRecord
	removes []string
}

func newMockSessions() *mockSessions {
	return &mockSessions{records: map[string]*domain.SessionRecord{}}
}

func (m *mockSessions) GetBySender(_ context.Context, customerID, _ string) (*domain.SessionRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.records[customerID], nil
}

func (m *mockSessions) Put(_ context.Context, rec domain.SessionRecord) error {
	m.puts = append(m.puts, rec)
	m.records[rec.CustomerID] = &rec
	return nil
}

func (m *mockSessions) Remove(_ context.Context, contactID string) error {
	m.removes = append(m.removes, contactID)
	for id, rec := range m.records {
		if rec.ContactID == contactID {
			delete(m.records, id)
		}
	}
	return nil
}

type sentText struct {
	text  string
	token string
}

type mockChat struct {
	opened     []string
	openErr    error
	sent       []sentText
	sendTags   []connectchat.ErrorTag
	renewed    []sentText
	renewTag   connectchat.ErrorTag
	renewErr   error
	renewOpens bool
	uploads    []string
	uploadTag  connectchat.ErrorTag
	uploadErr  error
	nextID     int
}

func (m *mockChat) newSession() *connectchat.Session {
	m.nextID++
	return &connectchat.Session{
		ContactID:        fmt.Sprintf("contact-%d", m.nextID),
		ParticipantToken: "pt",
		ConnectionToken:  "ct-new",
	}
}

func (m *mockChat) StartChatAndStream(_ context.Context, text, _, _, _, _ string) (*connectchat.Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened = append(m.opened, text)
	return m.newSession(), nil
}

func (m *mockChat) SendText(_ context.Context, text, connectionToken string) (connectchat.ErrorTag, error) {
	m.sent = append(m.sent, sentText{text, connectionToken})
	if len(m.sendTags) > 0 {
		tag := m.sendTags[0]
		m.sendTags = m.sendTags[1:]
		if tag != connectchat.TagOK {
			return tag, errors.New("send failed")
		}
	}
	return connectchat.TagOK, nil
}

func (m *mockChat) SendTextRenewing(ctx context.Context, text, connectionToken string, store connectchat.SessionWriter, r connectchat.Renewal) (*connectchat.Session, connectchat.ErrorTag, error) {
	if m.renewErr != nil {
		return nil, m.renewTag, m.renewErr
	}
	if !m.renewOpens {
		m.sent = append(m.sent, sentText{text, connectionToken})
		return nil, connectchat.TagOK, nil
	}
	// simulate the expired-connection path: new session carries the
	// text as its initial message, old record replaced
	m.renewed = append(m.renewed, sentText{text, connectionToken})
	session := m.newSession()
	if r.OldContactID != "" {
		_ = store.Remove(ctx, r.OldContactID)
	}
	_ = store.Put(ctx, domain.SessionRecord{
		ContactID:       session.ContactID,
		CustomerID:      r.CustomerID,
		Channel:         r.Channel,
		ConnectionToken: session.ConnectionToken,
	})
	return session, connectchat.TagOK, nil
}

func (m *mockChat) AttachFileRenewing(_ context.Context, _ []byte, filename, _, _ string, _ connectchat.SessionWriter, _ connectchat.Renewal) (string, *connectchat.Session, connectchat.ErrorTag, error) {
	m.uploads = append(m.uploads, filename)
	if m.uploadErr != nil {
		return "", nil, m.uploadTag, m.uploadErr
	}
	return "attach-1", nil, connectchat.TagOK, nil
}

type mockAudio struct {
	converted     string
	transcription string
	convertReqs   []string
	transcribeIn  []string
}

func (m *mockAudio) ConvertToWAV(_ context.Context, location string) string {
	m.convertReqs = append(m.convertReqs, location)
	return m.converted
}

func (m *mockAudio) Transcribe(_ context.Context, location string) string {
	m.transcribeIn = append(m.transcribeIn, location)
	return m.transcription
}

func textTurn(from, body string) *domain.AggregatedTurn {
	return &domain.AggregatedTurn{
		MessagingProduct: "whatsapp",
		Metadata:         map[string]any{"phone_number_id": "pn-1", "display_phone_number": "15550001111"},
		Contacts:         []domain.Contact{{WaID: from, Profile: domain.ContactProfile{Name: "Ana"}}},
		Messages: []domain.TurnEntry{{
			From:      from,
			ID:        "wamid.1",
			Timestamp: 100,
			Type:      domain.MessageTypeText,
			Text:      &domain.TextPayload{Body: body},
		}},
	}
}

func audioTurn(from string) *domain.AggregatedTurn {
	turn := textTurn(from, "")
	turn.Messages[0].Type = domain.MessageTypeAudio
	turn.Messages[0].Text = nil
	turn.Messages[0].Audio = &domain.MediaPayload{ID: "media-1", MimeType: "audio/ogg", Voice: true}
	return turn
}

func newTestRouter(t *testing.T, m *mockMessenger, chat *mockChat, store *mockSessions, audio *mockAudio) *Router {
	t.Helper()
	r, err := NewRouter(m, chat, store, audio, RouterConfig{ChatDuration: time.Hour})
	require.NoError(t, err)
	return r
}

func TestNewRouter_Validates(t *testing.T) {
	_, err := NewRouter(nil, &mockChat{}, newMockSessions(), &mockAudio{}, RouterConfig{})
	require.Error(t, err)

	_, err = NewRouter(&mockMessenger{}, &mockChat{}, nil, &mockAudio{}, RouterConfig{})
	require.Error(t, err)
}

func TestProcessTurn_NilTurn(t *testing.T) {
	r := newTestRouter(t, &mockMessenger{}, &mockChat{}, newMockSessions(), &mockAudio{})
	err := r.ProcessTurn(context.Background(), nil)

	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInvalidInput, ue.Code)
}

func TestProcessTurn_NewSenderOpensSession(t *testing.T) {
	m := &mockMessenger{}
	chat := &mockChat{}
	store := newMockSessions()
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	require.NoError(t, r.ProcessTurn(context.Background(), textTurn("5215500000001", "hello")))

	// text rides as the initial message of the fresh session
	require.Equal(t, []string{"hello"}, chat.opened)
	require.Empty(t, chat.sent)
	require.Len(t, store.puts, 1)
	require.Equal(t, "5215500000001", store.puts[0].CustomerID)
	require.Equal(t, "Whatsapp", store.puts[0].Channel)
	require.NotZero(t, store.puts[0].ExpiresAt)

	require.Equal(t, []string{"wamid.1"}, m.readIDs)
	require.Equal(t, []string{"👀", "✅"}, m.reactions)
}

func TestProcessTurn_ExistingSessionSendsText(t *testing.T) {
	m := &mockMessenger{}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{
		ContactID:       "contact-0",
		CustomerID:      "5215500000001",
		ConnectionToken: "ct-live",
	}
	chat := &mockChat{}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	require.NoError(t, r.ProcessTurn(context.Background(), textTurn("5215500000001", "hello")))

	require.Empty(t, chat.opened)
	require.Equal(t, []sentText{{"hello", "ct-live"}}, chat.sent)
	require.Empty(t, store.puts)
	require.Equal(t, []string{"👀", "✅"}, m.reactions)
}

func TestProcessTurn_ExpiredSessionRenewsOnce(t *testing.T) {
	m := &mockMessenger{}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{
		ContactID:       "old-contact",
		CustomerID:      "5215500000001",
		ConnectionToken: "ct-stale",
	}
	chat := &mockChat{renewOpens: true}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	require.NoError(t, r.ProcessTurn(context.Background(), textTurn("5215500000001", "hello")))

	require.Len(t, chat.renewed, 1)
	require.Equal(t, "hello", chat.renewed[0].text)
	require.Equal(t, []string{"old-contact"}, store.removes)
	require.Len(t, store.puts, 1)
	require.Len(t, store.records, 1)
	require.Equal(t, []string{"👀", "✅"}, m.reactions)
}

func TestProcessTurn_SendFailureSkipsDeliveredMarker(t *testing.T) {
	m := &mockMessenger{}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{renewErr: errors.New("throttled"), renewTag: connectchat.TagThrottling}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	// the failure is contained, not surfaced from ProcessTurn
	require.NoError(t, r.ProcessTurn(context.Background(), textTurn("5215500000001", "hello")))
	require.Equal(t, []string{"👀"}, m.reactions)
}

func TestProcessTurn_AudioAttachmentFullPath(t *testing.T) {
	m := &mockMessenger{
		fetchOut: &domain.Attachment{
			Content:  []byte("ogg bytes"),
			MimeType: "audio/ogg",
			Location: "s3://media/media/media-1.ogg",
		},
		objectOut: []byte("wav bytes"),
	}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{}
	audio := &mockAudio{converted: "s3://media/media/media-1.wav", transcription: "hola buenos dias"}
	r := newTestRouter(t, m, chat, store, audio)

	require.NoError(t, r.ProcessTurn(context.Background(), audioTurn("5215500000001")))

	// converted audio uploaded under the canonical voice filename
	require.Equal(t, []string{"voice.wav"}, chat.uploads)
	require.Equal(t, []string{"s3://media/media/media-1.ogg"}, audio.convertReqs)
	require.Equal(t, []string{"s3://media/media/media-1.wav"}, m.objectReqs)
	require.Equal(t, []string{"s3://media/media/media-1.wav"}, audio.transcribeIn)

	// transcription echoed back and forwarded as the turn text
	require.Equal(t, []string{"🔊_hola buenos dias_"}, m.texts)
	require.Equal(t, []sentText{{"hola buenos dias", "ct"}}, chat.sent)
	require.Equal(t, []string{"👀", "📎", "✅"}, m.reactions)
}

func TestProcessTurn_AudioConversionFailureKeepsOriginal(t *testing.T) {
	m := &mockMessenger{
		fetchOut: &domain.Attachment{
			Content:  []byte("ogg bytes"),
			MimeType: "audio/ogg",
			Location: "s3://media/media/media-1.ogg",
		},
	}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{}
	audio := &mockAudio{} // conversion and transcription both unavailable
	r := newTestRouter(t, m, chat, store, audio)

	require.NoError(t, r.ProcessTurn(context.Background(), audioTurn("5215500000001")))

	require.Equal(t, []string{"voice.ogg"}, chat.uploads)
	require.Equal(t, []string{"s3://media/media/media-1.ogg"}, audio.transcribeIn)
	require.Empty(t, m.texts)
	require.Empty(t, chat.sent)
	require.Equal(t, []string{"👀", "📎", "✅"}, m.reactions)
}

func TestProcessTurn_MediaFetchFailureDegradesToText(t *testing.T) {
	m := &mockMessenger{fetchErr: errors.New("graph 403")}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	turn := textTurn("5215500000001", "")
	turn.Messages[0].Type = domain.MessageTypeImage
	turn.Messages[0].Text = nil
	turn.Messages[0].Image = &domain.MediaPayload{ID: "media-9", MimeType: "image/jpeg", Caption: "look"}

	require.NoError(t, r.ProcessTurn(context.Background(), turn))

	require.Empty(t, chat.uploads)
	// failure notice lands in the transcript, caption still goes out
	require.Equal(t, []sentText{
		{"Failed to retrieve attachment content", "ct"},
		{"look", "ct"},
	}, chat.sent)
	require.Equal(t, []string{"👀", "❌", "✅"}, m.reactions)
}

func TestProcessTurn_UploadFailureNotifiesUser(t *testing.T) {
	m := &mockMessenger{
		fetchOut: &domain.Attachment{Content: []byte("img"), MimeType: "image/jpeg", Filename: "photo.jpeg", Location: "s3://media/media/m.jpeg"},
	}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{uploadErr: errors.New("slot rejected"), uploadTag: connectchat.TagUnexpectedError}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	turn := textTurn("5215500000001", "")
	turn.Messages[0].Type = domain.MessageTypeImage
	turn.Messages[0].Text = nil
	turn.Messages[0].Image = &domain.MediaPayload{ID: "media-9", MimeType: "image/jpeg"}

	require.NoError(t, r.ProcessTurn(context.Background(), turn))

	require.Equal(t, []string{"photo.jpeg"}, chat.uploads)
	require.Equal(t, []sentText{{"[UNEXPECTED_ERROR]", "ct"}}, chat.sent)
	// no text body, so the text path is a no-op and the message still
	// closes out after the contained attachment failure
	require.Equal(t, []string{"👀", "❌", "✅"}, m.reactions)
}

func TestProcessTurn_AttachmentWithoutSessionSkipsUpload(t *testing.T) {
	m := &mockMessenger{
		fetchOut: &domain.Attachment{Content: []byte("img"), MimeType: "image/jpeg", Location: "s3://media/media/m.jpeg"},
	}
	store := newMockSessions()
	chat := &mockChat{}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	turn := textTurn("5215500000001", "")
	turn.Messages[0].Type = domain.MessageTypeImage
	turn.Messages[0].Text = nil
	turn.Messages[0].Image = &domain.MediaPayload{ID: "media-9", MimeType: "image/jpeg"}

	require.NoError(t, r.ProcessTurn(context.Background(), turn))

	require.Empty(t, chat.uploads)
	// a fresh session still opens with the attachment placeholder text
	require.Equal(t, []string{""}, chat.opened)
	require.Len(t, store.puts, 1)
}

func TestProcessTurn_FailingMessageDoesNotAbortSiblings(t *testing.T) {
	m := &mockMessenger{}
	store := newMockSessions()
	store.records["5215500000001"] = &domain.SessionRecord{ContactID: "c", CustomerID: "5215500000001", ConnectionToken: "ct"}
	chat := &mockChat{renewErr: errors.New("down"), renewTag: connectchat.TagServerException}
	r := newTestRouter(t, m, chat, store, &mockAudio{})

	turn := textTurn("5215500000001", "first")
	turn.Messages = append(turn.Messages, domain.TurnEntry{
		From: "5215500000001", ID: "wamid.2", Timestamp: 101,
		Type: domain.MessageTypeText, Text: &domain.TextPayload{Body: "second"},
	})

	require.NoError(t, r.ProcessTurn(context.Background(), turn))

	// both messages were attempted despite the first one failing
	require.Equal(t, []string{"wamid.1", "wamid.2"}, m.readIDs)
}

func TestProcessTurn_IgnoreFlags(t *testing.T) {
	m := &mockMessenger{}
	r, err := NewRouter(m, &mockChat{}, newMockSessions(), &mockAudio{}, RouterConfig{
		IgnoreReactions: true,
		IgnoreStickers:  true,
		ChatDuration:    time.Hour,
	})
	require.NoError(t, err)

	turn := textTurn("5215500000001", "hi")
	turn.Messages[0].Type = domain.MessageTypeReaction
	turn.Messages[0].Text = nil
	turn.Messages[0].Reaction = &domain.ReactionPayload{MessageID: "wamid.0", Emoji: "👍"}

	require.NoError(t, r.ProcessTurn(context.Background(), turn))
	require.Empty(t, m.readIDs)
	require.Empty(t, m.reactions)
}
