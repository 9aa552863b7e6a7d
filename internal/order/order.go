// Package order holds placed orders and their delivery lifecycle.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound          = errors.New("order not found")
	ErrUnknownMode       = errors.New("unknown delivery mode")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("order status can only move forward")
)

type DeliveryMode string

const (
	ModeBatch   DeliveryMode = "Batch"
	ModeInstant DeliveryMode = "Instant"
)

// InstantFee is the delivery charge in rupees for instant orders.
const InstantFee = 30.0

const (
	batchETA   = "Batch @ 4:00 PM"
	instantETA = "Within 30 mins"
)

// ParseMode accepts mode names case-insensitively. Empty means batch.
func ParseMode(s string) (DeliveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "batch":
		return ModeBatch, nil
	case "instant":
		return ModeInstant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Quote returns the delivery fee and estimate shown for a mode.
func (m DeliveryMode) Quote() (fee float64, eta string) {
	if m == ModeInstant {
		return InstantFee, instantETA
	}
	return 0, batchETA
}

type Status string

const (
	StatusPending        Status = "Pending"
	StatusConfirmed      Status = "Confirmed"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
)

var lifecycle = []Status{StatusPending, StatusConfirmed, StatusOutForDelivery, StatusDelivered}

func (s Status) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStatus matches a lifecycle status ignoring case and underscores.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	for _, st := range lifecycle {
		if strings.ToLower(string(st)) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// CanAdvanceTo reports whether next is strictly later in the lifecycle.
func (s Status) CanAdvanceTo(next Status) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// Line is a catalog item with the quantity ordered and the price at order time.
type Line struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func (l Line) Total() float64 { return l.Price * float64(l.Quantity) }

type Order struct {
	ID                string       `json:"id"`
	SessionID         string       `json:"session_id"`
	Items             []Line       `json:"items"`
	Subtotal          float64      `json:"subtotal"`
	DeliveryFee       float64      `json:"delivery_fee"`
	Total             float64      `json:"total"`
	DeliveryMode      DeliveryMode `json:"delivery_mode"`
	Status            Status       `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	EstimatedDelivery string       `json:"estimated_delivery"`
	CustomerName      string       `json:"customer_name"`
	CustomerAddress   string       `json:"customer_address"`
}

// New prices lines for mode and returns a confirmed order with a fresh ID.
func New(sessionID string, lines []Line, mode DeliveryMode, customerName, customerAddress string, now time.Time) Order {
	items := make([]Line, len(lines))
	copy(items, lines)

	var subtotal float64
	for _, l := range items {
		subtotal += l.Total()
	}
	fee, eta := mode.Quote()
	return Order{
		ID:                NewID(),
		SessionID:         sessionID,
		Items:             items,
		Subtotal:          subtotal,
		DeliveryFee:       fee,
		Total:             subtotal + fee,
		DeliveryMode:      mode,
		Status:            StatusConfirmed,
		CreatedAt:         now.UTC(),
		EstimatedDelivery: eta,
		CustomerName:      customerName,
		CustomerAddress:   customerAddress,
	}
}

// NewID returns a short human-readable order id such as ORD-1A2B3C4D.
func NewID() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// List returns all orders, newest first.
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus moves an order forward in its lifecycle.
	UpdateStatus(ctx context.Context, id string, status Status) (Order, error)
	Close() error
}

func checkTransition(from, to Status) error {
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}
