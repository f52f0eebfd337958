package whatsapp

import (
	"whatsapp-connect-chat/internal/domain"
)

// ParseTurn expands an aggregated turn into the per-message units the
// router processes, applying the configured ignore flags. Media is not
// fetched here; the router resolves attachments lazily so a download
// failure stays scoped to its message.
func ParseTurn(turn *domain.AggregatedTurn, ignoreReactions, ignoreStickers bool) []*domain.TurnMessage {
	name := turn.CustomerName()
	originID := turn.PhoneNumberID()

	msgs := make([]*domain.TurnMessage, 0, len(turn.Messages))
	for _, entry := range turn.Messages {
		if ignoreReactions && entry.Type == domain.MessageTypeReaction {
			continue
		}
		if ignoreStickers && entry.Type == domain.MessageTypeSticker {
			continue
		}
		msgs = append(msgs, &domain.TurnMessage{
			From:          entry.From,
			PhoneNumberID: originID,
			Entry:         entry,
			CustomerName:  name,
		})
	}
	return msgs
}
