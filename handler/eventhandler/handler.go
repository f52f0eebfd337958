// Package eventhandler adapts asynchronously dispatched aggregated
// turns onto the turn router.
package eventhandler

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-connect-chat/internal/domain"
)

// TurnRouter processes one aggregated turn end to end.
type TurnRouter interface {
	ProcessTurn(ctx context.Context, turn *domain.AggregatedTurn) error
}

type Handler struct {
	router TurnRouter
}

func NewHandler(router TurnRouter) (*Handler, error) {
	if router == nil {
		return nil, errors.New("eventhandler: turn router must not be nil")
	}
	return &Handler{router: router}, nil
}

type Response struct {
	Result string `json:"result"`
}

func (h *Handler) Handle(ctx context.Context, turn domain.AggregatedTurn) (Response, error) {
	if err := h.router.ProcessTurn(ctx, &turn); err != nil {
		return Response{Result: "ERROR"}, fmt.Errorf("eventhandler: process turn: %w", err)
	}
	return Response{Result: "OK"}, nil
}
