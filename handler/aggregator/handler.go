// Package aggregator adapts the raw-messages change feed: decodes
// tagged INSERT images, aggregates them into turns and fans each turn
// out to the event handler.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"whatsapp-connect-chat/internal/aggregate"
	"whatsapp-connect-chat/internal/domain"
	"whatsapp-connect-chat/internal/streamcodec"
)

// TurnDispatcher hands one aggregated turn to the event handler.
type TurnDispatcher interface {
	DispatchTurn(ctx context.Context, turn any) error
}

type Handler struct {
	dispatcher TurnDispatcher
	logger     *slog.Logger
}

func NewHandler(dispatcher TurnDispatcher) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("aggregator: turn dispatcher must not be nil")
	}
	return &Handler{dispatcher: dispatcher, logger: slog.Default()}, nil
}

// Event is the change-feed batch. NewImage is kept as the raw tagged
// wire format so the deserializer owns all tag handling.
type Event struct {
	Records []struct {
		EventName string `json:"eventName"`
		Change    struct {
			NewImage map[string]any `json:"NewImage"`
		} `json:"dynamodb"`
	} `json:"Records"`
	State map[string]any `json:"state"`
}

type Response struct {
	State map[string]any `json:"state"`
}

// Handle decodes the batch's INSERT images, aggregates them and
// dispatches one asynchronous invocation per turn. Records that fail to
// decode are logged and skipped; a dispatch failure fails the
// invocation so the feed shard is retried.
func (h *Handler) Handle(ctx context.Context, event Event) (Response, error) {
	records := make([]domain.RawMessageRecord, 0, len(event.Records))
	for _, r := range event.Records {
		if r.EventName != "INSERT" {
			continue
		}
		rec, err := decodeImage(r.Change.NewImage)
		if err != nil {
			h.logger.Error("undecodable stream image, skipping", "err", err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return Response{State: event.State}, nil
	}

	turns := aggregate.Aggregate(records)
	h.logger.Info("aggregated change-feed batch", "records", len(records), "turns", len(turns))

	for i := range turns {
		if err := h.dispatcher.DispatchTurn(ctx, &turns[i]); err != nil {
			return Response{}, fmt.Errorf("aggregator: dispatch turn: %w", err)
		}
	}
	return Response{State: event.State}, nil
}

// decodeImage untags one NewImage and rebinds it onto the typed record.
func decodeImage(image map[string]any) (domain.RawMessageRecord, error) {
	var rec domain.RawMessageRecord
	plain, err := streamcodec.Decode(image)
	if err != nil {
		return rec, err
	}
	buf, err := json.Marshal(plain)
	if err != nil {
		return rec, fmt.Errorf("aggregator: remarshal image: %w", err)
	}
	if err := json.Unmarshal(buf, &rec); err != nil {
		return rec, fmt.Errorf("aggregator: bind image: %w", err)
	}
	return rec, nil
}
