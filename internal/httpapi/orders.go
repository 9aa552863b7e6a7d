package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/session"
)

// SessionHeader carries the caller's session id for order endpoints.
const SessionHeader = "X-Session-ID"

// caller resolves the session named by SessionHeader.
func (s *Server) caller(r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, false
	}
	return sess, true
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.caller(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", SessionHeader+" header must name an existing session")
		return
	}
	all, err := s.orders.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if sess.Role == session.RoleStoreOwner {
		respondJSON(w, http.StatusOK, map[string]any{"orders": all})
		return
	}

	mine := make([]order.Order, 0, len(all))
	for _, o := range all {
		if o.SessionID == sess.ID {
			mine = append(mine, o)
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": mine})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.caller(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", SessionHeader+" header must name an existing session")
		return
	}
	o, err := s.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if sess.Role != session.RoleStoreOwner && o.SessionID != sess.ID {
		respondServiceError(w, order.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.caller(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", SessionHeader+" header must name an existing session")
		return
	}
	if sess.Role != session.RoleStoreOwner {
		respondError(w, http.StatusForbidden, "forbidden", "only the store owner can change order status")
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	o, err := s.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
