// Package cart keeps each session's basket and turns it into an order at checkout.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/antoniostano/kirana/internal/order"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnknownItem     = errors.New("item is not in the catalog")
	ErrInvalidQuantity = errors.New("quantity must be a positive whole number")
	ErrCapReached      = errors.New("item is already at the per-item limit")
)

// ReasonUnknownItem marks deltas naming items missing from the catalog.
const ReasonUnknownItem = "unknown_item"

// Cart is one session's basket. Lines keep first-added order.
type Cart struct {
	SessionID string       `json:"session_id"`
	Lines     []order.Line `json:"lines"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (c Cart) Total() float64 {
	var sum float64
	for _, l := range c.Lines {
		sum += l.Total()
	}
	return sum
}

// Count is the number of units across all lines.
func (c Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c Cart) Quantity(itemID string) int {
	for _, l := range c.Lines {
		if l.ItemID == itemID {
			return l.Quantity
		}
	}
	return 0
}

func (c Cart) clone() Cart {
	lines := make([]order.Line, len(c.Lines))
	copy(lines, c.Lines)
	c.Lines = lines
	return c
}

// Store loads and saves carts by session.
type Store interface {
	// Load returns an empty cart when none is stored.
	Load(ctx context.Context, sessionID string) (Cart, error)
	Save(ctx context.Context, c Cart) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
