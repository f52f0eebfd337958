// Package aggregate groups a change-feed batch of raw messages into
// conversational turns, merging consecutive same-sender text messages.
package aggregate

import (
	"encoding/json"
	"sort"
	"strings"

	"whatsapp-connect-chat/internal/domain"
)

type group struct {
	messagingProduct string
	metadata         map[string]any
	context          map[string]any
	contacts         map[string]domain.Contact
	contactOrder     []string
	records          []domain.RawMessageRecord
}

// Aggregate partitions records by (metadata, context, sender), orders
// each partition by timestamp and merges consecutive text runs into
// single entries. Entry order inside a turn preserves the strict
// timestamp order of each run's first message; equal timestamps keep
// feed order. An empty batch yields an empty result.
func Aggregate(records []domain.RawMessageRecord) []domain.AggregatedTurn {
	groups := make(map[string]*group)
	var order []string

	for _, rec := range records {
		key := groupKey(rec)
		g, ok := groups[key]
		if !ok {
			g = &group{contacts: make(map[string]domain.Contact)}
			groups[key] = g
			order = append(order, key)
		}
		g.messagingProduct = rec.MessagingProduct
		g.metadata = rec.Metadata
		g.context = rec.Context
		g.records = append(g.records, rec)
		if rec.Contact != nil {
			if _, seen := g.contacts[rec.From]; !seen {
				g.contactOrder = append(g.contactOrder, rec.From)
			}
			g.contacts[rec.From] = *rec.Contact
		}
	}

	turns := make([]domain.AggregatedTurn, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.records, func(i, j int) bool {
			return g.records[i].Timestamp < g.records[j].Timestamp
		})

		contacts := make([]domain.Contact, 0, len(g.contactOrder))
		for _, sender := range g.contactOrder {
			contacts = append(contacts, g.contacts[sender])
		}

		turns = append(turns, domain.AggregatedTurn{
			MessagingProduct: g.messagingProduct,
			Metadata:         g.metadata,
			Context:          g.context,
			Field:            "messages",
			Contacts:         contacts,
			Messages:         mergeRuns(g.records),
		})
	}
	return turns
}

// groupKey serializes metadata and context with sorted keys so
// structurally equal maps hash identically regardless of field order.
func groupKey(rec domain.RawMessageRecord) string {
	meta, _ := json.Marshal(rec.Metadata)
	ctx, _ := json.Marshal(rec.Context)
	return string(meta) + "|" + string(ctx) + "|" + rec.From
}

// mergeRuns scans timestamp-ordered records and collapses each run of
// consecutive text messages from the run's first sender into one entry
// whose body is the newline-joined concatenation of the run. Non-text
// records flush the pending run and are emitted unmerged.
func mergeRuns(records []domain.RawMessageRecord) []domain.TurnEntry {
	var out []domain.TurnEntry
	var run []domain.RawMessageRecord

	flush := func() {
		if len(run) == 0 {
			return
		}
		entry := project(run[0])
		if len(run) > 1 {
			bodies := make([]string, len(run))
			for i, r := range run {
				if r.Text != nil {
					bodies[i] = r.Text.Body
				}
			}
			entry.Text = &domain.TextPayload{Body: strings.Join(bodies, "\n")}
		}
		out = append(out, entry)
		run = nil
	}

	for _, rec := range records {
		if rec.Type == domain.MessageTypeText && (len(run) == 0 || rec.From == run[0].From) {
			run = append(run, rec)
			continue
		}
		flush()
		if rec.Type == domain.MessageTypeText {
			run = append(run, rec)
			continue
		}
		out = append(out, project(rec))
	}
	flush()
	return out
}

// project copies the allow-listed fields of a raw record onto a turn
// entry.
func project(rec domain.RawMessageRecord) domain.TurnEntry {
	return domain.TurnEntry{
		From:        rec.From,
		ID:          rec.ID,
		Timestamp:   rec.Timestamp,
		Type:        rec.Type,
		Text:        rec.Text,
		Audio:       rec.Audio,
		Image:       rec.Image,
		Video:       rec.Video,
		Document:    rec.Document,
		Sticker:     rec.Sticker,
		Location:    rec.Location,
		Contacts:    rec.Contacts,
		Interactive: rec.Interactive,
		Reaction:    rec.Reaction,
	}
}
