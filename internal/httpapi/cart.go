package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/protocol"
)

type cartView struct {
	SessionID string       `json:"session_id"`
	Lines     []order.Line `json:"lines"`
	Count     int          `json:"count"`
	Total     float64      `json:"total"`
}

func newCartView(c cart.Cart) cartView {
	lines := c.Lines
	if lines == nil {
		lines = []order.Line{}
	}
	return cartView{SessionID: c.SessionID, Lines: lines, Count: c.Count(), Total: c.Total()}
}

func cartSnapshot(sessionID string, c cart.Cart) protocol.CartSnapshot {
	lines := make([]protocol.CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, protocol.CartLine{ItemID: l.ItemID, Name: l.Name, Unit: l.Unit, Price: l.Price, Quantity: l.Quantity})
	}
	return protocol.CartSnapshot{
		Type:      protocol.TypeCartSnapshot,
		SessionID: sessionID,
		Lines:     lines,
		Count:     c.Count(),
		Total:     c.Total(),
	}
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondServiceError(w, err)
		return
	}
	c, err := s.carts.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(c))
}

type adjustCartRequest struct {
	ItemID string `json:"item_id"`
	// Delta defaults to +1.
	Delta *int `json:"delta"`
}

func (s *Server) handleAdjustCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		respondServiceError(w, err)
		return
	}

	var req adjustCartRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "item_id is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "item_id is required")
		return
	}
	delta := 1
	if req.Delta != nil {
		delta = *req.Delta
	}

	c, err := s.carts.Adjust(r.Context(), id, strings.TrimSpace(req.ItemID), delta)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(c))
}

type checkoutRequest struct {
	DeliveryMode string `json:"delivery_mode"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	mode, err := order.ParseMode(req.DeliveryMode)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	o, err := s.chat.Checkout(r.Context(), chi.URLParam(r, "id"), mode)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}
