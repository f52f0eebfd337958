// Package usecase orchestrates one aggregated conversation turn: mark
// it read upstream, resolve the sender's chat session, process media
// side-effects and forward the textual content to the contact center.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"whatsapp-connect-chat/internal/domain"
	"whatsapp-connect-chat/internal/integrations/connectchat"
	"whatsapp-connect-chat/internal/integrations/whatsapp"
)

const channelWhatsapp = "Whatsapp"

// Messenger is the upstream messaging surface the router needs: read
// receipts, reaction markers, text replies and media retrieval.
type Messenger interface {
	MarkAsRead(ctx context.Context, originationID, messageID string) error
	React(ctx context.Context, originationID, to, messageID, emoji string) error
	SendText(ctx context.Context, originationID, to, body string) error
	FetchMedia(ctx context.Context, media *domain.MediaPayload) (*domain.Attachment, error)
	GetS3FileContent(ctx context.Context, location string) ([]byte, error)
}

// SessionStore is the session-record surface the router needs. It
// extends the writer interface the chat client uses during renewal with
// the lookup the router performs per message.
type SessionStore interface {
	connectchat.SessionWriter
	GetBySender(ctx context.Context, customerID, channel string) (*domain.SessionRecord, error)
}

// ChatClient is the contact-center session surface.
type ChatClient interface {
	StartChatAndStream(ctx context.Context, text, customerID, channel, name, systemNumber string) (*connectchat.Session, error)
	SendText(ctx context.Context, text, connectionToken string) (connectchat.ErrorTag, error)
	SendTextRenewing(ctx context.Context, text, connectionToken string, store connectchat.SessionWriter, r connectchat.Renewal) (*connectchat.Session, connectchat.ErrorTag, error)
	AttachFileRenewing(ctx context.Context, content []byte, filename, mediaType, connectionToken string, store connectchat.SessionWriter, r connectchat.Renewal) (string, *connectchat.Session, connectchat.ErrorTag, error)
}

// AudioPipeline is the best-effort transcode/transcribe side-channel.
// Both calls return an empty string when the result is unavailable.
type AudioPipeline interface {
	ConvertToWAV(ctx context.Context, location string) string
	Transcribe(ctx context.Context, location string) string
}

// RouterConfig carries the per-deployment toggles the router honors.
type RouterConfig struct {
	IgnoreReactions bool
	IgnoreStickers  bool
	ChatDuration    time.Duration
}

// Router processes aggregated turns one message at a time. A failing
// message never aborts its siblings.
type Router struct {
	messenger Messenger
	chat      ChatClient
	store     SessionStore
	audio     AudioPipeline
	cfg       RouterConfig
	logger    *slog.Logger
}

func NewRouter(messenger Messenger, chat ChatClient, store SessionStore, audio AudioPipeline, cfg RouterConfig) (*Router, error) {
	if messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if chat == nil {
		return nil, errors.New("usecase: chat client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if audio == nil {
		return nil, errors.New("usecase: audio pipeline must not be nil")
	}
	if cfg.ChatDuration <= 0 {
		cfg.ChatDuration = time.Hour
	}
	return &Router{
		messenger: messenger,
		chat:      chat,
		store:     store,
		audio:     audio,
		cfg:       cfg,
		logger:    slog.Default(),
	}, nil
}

// ProcessTurn routes every message of one aggregated turn. Per-message
// failures are logged and swallowed so sibling messages still go out;
// only a nil turn is rejected outright.
func (r *Router) ProcessTurn(ctx context.Context, turn *domain.AggregatedTurn) error {
	if turn == nil {
		return newError(ErrorInvalidInput, "turn must not be nil", nil)
	}
	for _, msg := range whatsapp.ParseTurn(turn, r.cfg.IgnoreReactions, r.cfg.IgnoreStickers) {
		if err := r.processMessage(ctx, msg); err != nil {
			r.logger.Error("message processing failed",
				"sender", msg.From, "messageId", msg.Entry.ID, "err", err)
		}
	}
	return nil
}

func (r *Router) processMessage(ctx context.Context, msg *domain.TurnMessage) error {
	if err := r.messenger.MarkAsRead(ctx, msg.PhoneNumberID, msg.Entry.ID); err != nil {
		r.logger.Warn("mark as read failed", "messageId", msg.Entry.ID, "err", err)
	}
	r.react(ctx, msg, "👀")

	if media := msg.Entry.Media(); media != nil {
		if err := r.processAttachment(ctx, msg, media); err != nil {
			// degrade to the text-only path
			r.logger.Error("attachment processing failed",
				"sender", msg.From, "messageId", msg.Entry.ID, "err", err)
		}
	}

	session, err := r.store.GetBySender(ctx, msg.From, channelWhatsapp)
	if err != nil {
		return newError(ErrorUpstream, "resolve session", err)
	}

	text := msg.Text()
	if msg.Transcription != "" {
		if err := r.messenger.SendText(ctx, msg.PhoneNumberID, msg.From, "🔊_"+msg.Transcription+"_"); err != nil {
			r.logger.Warn("transcription echo failed", "sender", msg.From, "err", err)
		}
		text = msg.Transcription
	}

	if session != nil {
		if text != "" {
			_, tag, err := r.chat.SendTextRenewing(ctx, text, session.ConnectionToken, r.store, r.renewal(msg, session.ContactID))
			if err != nil {
				return newError(codeForTag(tag), "send text", err)
			}
		}
	} else {
		opened, err := r.chat.StartChatAndStream(ctx, text, msg.From, channelWhatsapp, msg.CustomerName, msg.PhoneNumberID)
		if err != nil {
			return newError(ErrorUpstream, "open session", err)
		}
		if err := r.store.Put(ctx, domain.SessionRecord{
			ContactID:        opened.ContactID,
			CustomerID:       msg.From,
			Channel:          channelWhatsapp,
			ParticipantToken: opened.ParticipantToken,
			ConnectionToken:  opened.ConnectionToken,
			Name:             msg.CustomerName,
			SystemNumber:     msg.PhoneNumberID,
			ExpiresAt:        time.Now().Add(r.cfg.ChatDuration).Unix(),
		}); err != nil {
			return newError(ErrorUpstream, "persist session", err)
		}
	}

	r.react(ctx, msg, "✅")
	return nil
}

// processAttachment downloads the media, transcodes audio when
// possible, uploads the binary into the active chat and finally
// transcribes audio for the text path. Each stage degrades
// independently.
func (r *Router) processAttachment(ctx context.Context, msg *domain.TurnMessage, media *domain.MediaPayload) error {
	attachment, err := r.messenger.FetchMedia(ctx, media)
	if err != nil {
		r.react(ctx, msg, "❌")
		r.notify(ctx, msg, "Failed to retrieve attachment content")
		return newError(ErrorAttachmentFailed, "fetch media", err)
	}
	msg.Attachment = attachment

	content := attachment.Content
	filename := attachment.Filename
	mediaType := attachment.MimeType

	audioLocation := ""
	if msg.Entry.Type == domain.MessageTypeAudio {
		filename = "voice.ogg"
		audioLocation = attachment.Location
		if converted := r.audio.ConvertToWAV(ctx, attachment.Location); converted != "" {
			wav, err := r.messenger.GetS3FileContent(ctx, converted)
			if err != nil {
				r.logger.Warn("reading converted audio failed, keeping original", "location", converted, "err", err)
			} else {
				content, filename, mediaType = wav, "voice.wav", "audio/wav"
				audioLocation = converted
			}
		}
	}
	if filename == "" {
		filename = "file." + whatsapp.ExtensionForMime(mediaType)
	}

	session, err := r.store.GetBySender(ctx, msg.From, channelWhatsapp)
	if err != nil {
		return newError(ErrorUpstream, "resolve session for upload", err)
	}
	if session == nil || session.ConnectionToken == "" {
		r.logger.Info("no active session, attachment upload skipped", "sender", msg.From)
	} else {
		_, _, tag, err := r.chat.AttachFileRenewing(ctx, content, filename, mediaType, session.ConnectionToken, r.store, r.renewal(msg, session.ContactID))
		if err != nil {
			r.react(ctx, msg, "❌")
			r.notify(ctx, msg, "["+string(tag)+"]")
			return newError(ErrorAttachmentFailed, "upload attachment", err)
		}
		r.react(ctx, msg, "📎")
	}

	if audioLocation != "" {
		if transcription := r.audio.Transcribe(ctx, audioLocation); transcription != "" {
			msg.Transcription = transcription
		}
	}
	return nil
}

func (r *Router) renewal(msg *domain.TurnMessage, oldContactID string) connectchat.Renewal {
	return connectchat.Renewal{
		CustomerID:   msg.From,
		Channel:      channelWhatsapp,
		Name:         msg.CustomerName,
		SystemNumber: msg.PhoneNumberID,
		OldContactID: oldContactID,
	}
}

func (r *Router) react(ctx context.Context, msg *domain.TurnMessage, emoji string) {
	if err := r.messenger.React(ctx, msg.PhoneNumberID, msg.From, msg.Entry.ID, emoji); err != nil {
		r.logger.Warn("reaction failed", "messageId", msg.Entry.ID, "emoji", emoji, "err", err)
	}
}

// notify pushes a textual error notice into the chat transcript when a
// still-valid connection exists. The session is re-read because a
// renewal may have replaced it since the caller's lookup.
func (r *Router) notify(ctx context.Context, msg *domain.TurnMessage, text string) {
	session, err := r.store.GetBySender(ctx, msg.From, channelWhatsapp)
	if err != nil || session == nil || session.ConnectionToken == "" {
		return
	}
	if _, err := r.chat.SendText(ctx, text, session.ConnectionToken); err != nil {
		r.logger.Warn("failure notice not delivered", "sender", msg.From, "err", err)
	}
}

func codeForTag(tag connectchat.ErrorTag) ErrorCode {
	if tag == connectchat.TagAccessDenied {
		return ErrorSessionExpired
	}
	return ErrorUpstream
}
