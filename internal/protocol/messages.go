package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage       MessageType = "user_message"
	TypeClientControl     MessageType = "client_control"
	TypeAssistantReply    MessageType = "assistant_reply"
	TypeCartSnapshot      MessageType = "cart_snapshot"
	TypeCheckoutRequested MessageType = "checkout_requested"
	TypeOrderPlaced       MessageType = "order_placed"
	TypeErrorEvent        MessageType = "error_event"
)

// Client control actions.
const (
	ActionCheckout = "checkout"
	ActionPing     = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type UserMessage struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Text        string      `json:"text"`
	ClientMsgID string      `json:"client_msg_id,omitempty"`
}

type ClientControl struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Action       string      `json:"action"`
	DeliveryMode string      `json:"delivery_mode,omitempty"`
}

type CartLine struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Rejection struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type AssistantReply struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	ClientMsgID string      `json:"client_msg_id,omitempty"`
	Text        string      `json:"text"`
	Rejected    []Rejection `json:"rejected,omitempty"`
	Degraded    bool        `json:"degraded"`
}

type CartSnapshot struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Lines     []CartLine  `json:"lines"`
	Count     int         `json:"count"`
	Total     float64     `json:"total"`
}

type CheckoutRequested struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Total     float64     `json:"total"`
}

type OrderPlaced struct {
	Type              MessageType `json:"type"`
	SessionID         string      `json:"session_id"`
	OrderID           string      `json:"order_id"`
	Total             float64     `json:"total"`
	DeliveryMode      string      `json:"delivery_mode"`
	EstimatedDelivery string      `json:"estimated_delivery"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid user_message")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
