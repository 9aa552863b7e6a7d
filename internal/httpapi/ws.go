package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/kirana/internal/assistant"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/protocol"
	"github.com/antoniostano/kirana/internal/session"
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.countSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sessionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.logger.Debug("ws write failed", zap.String("session_id", sessionID), zap.Error(err))
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.countWS("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err == nil && messageSessionID(parsed) != sessionID {
			err = errors.New("session_id does not match connection")
		}
		if err != nil {
			ev := errorEvent(sessionID, "invalid_client_message", "gateway", false, err.Error())
			select {
			case outbound <- ev:
			default:
				// Writes stay on one goroutine; drop when the queue is saturated.
				s.countWS("dropped", protocol.TypeErrorEvent)
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.countWS("inbound", t)
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.countSessionEvent("ws_disconnected")
}

// runConnection handles client messages in arrival order, so the events of one
// turn are written before the next turn starts.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	emit := func(v any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- v:
			return true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			for _, ev := range s.handleClientMessage(ctx, sessionID, msg) {
				if !emit(ev) {
					return
				}
			}
		}
	}
}

func (s *Server) handleClientMessage(ctx context.Context, sessionID string, msg any) []any {
	switch m := msg.(type) {
	case protocol.UserMessage:
		reply, err := s.chat.Send(ctx, sessionID, m.Text)
		if err != nil {
			code, retryable := wsErrorCode(err)
			return []any{errorEvent(sessionID, code, "chat", retryable, err.Error())}
		}
		events := []any{
			protocol.AssistantReply{
				Type:        protocol.TypeAssistantReply,
				SessionID:   sessionID,
				TurnID:      reply.TurnID,
				ClientMsgID: m.ClientMsgID,
				Text:        reply.Text,
				Rejected:    wireRejections(reply.Rejected),
				Degraded:    reply.Degraded,
			},
			cartSnapshot(sessionID, reply.Cart),
		}
		if reply.CheckoutRequested {
			events = append(events, protocol.CheckoutRequested{
				Type:      protocol.TypeCheckoutRequested,
				SessionID: sessionID,
				TurnID:    reply.TurnID,
				Total:     reply.Cart.Total(),
			})
		}
		return events
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionPing:
			if err := s.sessions.Touch(sessionID); err != nil {
				code, retryable := wsErrorCode(err)
				return []any{errorEvent(sessionID, code, "session", retryable, err.Error())}
			}
			return nil
		case protocol.ActionCheckout:
			mode, err := order.ParseMode(m.DeliveryMode)
			if err != nil {
				return []any{errorEvent(sessionID, "invalid_delivery_mode", "checkout", false, err.Error())}
			}
			o, err := s.chat.Checkout(ctx, sessionID, mode)
			if err != nil {
				code, retryable := wsErrorCode(err)
				return []any{errorEvent(sessionID, code, "checkout", retryable, err.Error())}
			}
			return []any{
				protocol.OrderPlaced{
					Type:              protocol.TypeOrderPlaced,
					SessionID:         sessionID,
					OrderID:           o.ID,
					Total:             o.Total,
					DeliveryMode:      string(o.DeliveryMode),
					EstimatedDelivery: o.EstimatedDelivery,
				},
				cartSnapshot(sessionID, cart.Cart{SessionID: sessionID}),
			}
		default:
			return []any{errorEvent(sessionID, "unsupported_action", "gateway", false, "unknown action "+m.Action)}
		}
	default:
		return nil
	}
}

func wsErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, session.ErrTurnInProgress):
		return "turn_in_progress", true
	case errors.Is(err, session.ErrNotFound):
		return "session_not_found", false
	case errors.Is(err, session.ErrEnded):
		return "session_ended", false
	case errors.Is(err, assistant.ErrEmptyMessage):
		return "empty_message", false
	case errors.Is(err, cart.ErrEmptyCart):
		return "empty_cart", false
	default:
		return "internal_error", true
	}
}

func errorEvent(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}

func wireRejections(in []cart.Rejection) []protocol.Rejection {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.Rejection, 0, len(in))
	for _, r := range in {
		out = append(out, protocol.Rejection{ItemID: r.ItemID, Quantity: r.Quantity, Reason: r.Reason})
	}
	return out
}

func messageSessionID(v any) string {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.SessionID
	case protocol.ClientControl:
		return m.SessionID
	default:
		return ""
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.CartSnapshot:
		return m.Type, true
	case protocol.CheckoutRequested:
		return m.Type, true
	case protocol.OrderPlaced:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

func (s *Server) countWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func (s *Server) countSessionEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}
