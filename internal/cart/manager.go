package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/policy"
)

// Delta is a requested addition of Quantity units of ItemID.
type Delta struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// Applied is a delta that changed the cart. Quantity is the line total afterwards.
type Applied struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Added    int    `json:"added"`
	Quantity int    `json:"quantity"`
}

// Rejection is a delta that left the cart untouched.
type Rejection struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

type Outcome struct {
	Applied  []Applied   `json:"applied"`
	Rejected []Rejection `json:"rejected"`
	Cart     Cart        `json:"cart"`
}

// Customer is who the order is delivered to.
type Customer struct {
	Name    string
	Address string
}

// Manager applies changes to carts against the catalog and the per-item rules.
type Manager struct {
	store    Store
	catalog  *catalog.Catalog
	orders   order.Repository
	ordering policy.Ordering
	now      func() time.Time
	logger   *zap.Logger

	mu sync.Mutex
}

func NewManager(store Store, cat *catalog.Catalog, orders order.Repository, ordering policy.Ordering) *Manager {
	return &Manager{
		store:    store,
		catalog:  cat,
		orders:   orders,
		ordering: ordering,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
}

func (m *Manager) SetLogger(logger *zap.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

func (m *Manager) Get(ctx context.Context, sessionID string) (Cart, error) {
	return m.store.Load(ctx, sessionID)
}

func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// ApplyDeltas merges deltas into the session cart. Unknown items, bad quantities and
// deltas that would take a line over the per-item cap are rejected individually; the
// rest are applied in order.
func (m *Manager) ApplyDeltas(ctx context.Context, sessionID string, deltas []Delta) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Applied: []Applied{}, Rejected: []Rejection{}}
	changed := false
	for _, d := range deltas {
		entry, ok := m.catalog.Lookup(d.ItemID)
		if !ok {
			out.Rejected = append(out.Rejected, Rejection{ItemID: d.ItemID, Quantity: d.Quantity, Reason: ReasonUnknownItem})
			continue
		}

		adm := m.ordering.Admit(c.Quantity(entry.ID), d.Quantity)
		if adm.Rejected {
			out.Rejected = append(out.Rejected, Rejection{ItemID: d.ItemID, Quantity: d.Quantity, Reason: adm.Reason})
			continue
		}

		qty := c.add(entry, adm.Quantity)
		changed = true
		out.Applied = append(out.Applied, Applied{
			ItemID:   entry.ID,
			Name:     entry.Name,
			Added:    adm.Quantity,
			Quantity: qty,
		})
	}

	if changed {
		c.UpdatedAt = m.now().UTC()
		if err := m.store.Save(ctx, c); err != nil {
			return Outcome{}, err
		}
	}
	out.Cart = c
	return out, nil
}

// Add puts one more unit of itemID in the cart.
func (m *Manager) Add(ctx context.Context, sessionID, itemID string) (Cart, error) {
	return m.Adjust(ctx, sessionID, itemID, 1)
}

// Adjust changes a line by delta units. A line that drops to zero is removed.
func (m *Manager) Adjust(ctx context.Context, sessionID, itemID string, delta int) (Cart, error) {
	if delta == 0 {
		return Cart{}, ErrInvalidQuantity
	}
	entry, ok := m.catalog.Lookup(itemID)
	if !ok {
		return Cart{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	if delta > 0 {
		adm := m.ordering.Admit(c.Quantity(itemID), delta)
		if adm.Rejected {
			return Cart{}, fmt.Errorf("%w: %s", ErrCapReached, entry.Name)
		}
		c.add(entry, adm.Quantity)
	} else {
		if c.Quantity(itemID) == 0 {
			return c, nil
		}
		c.remove(itemID, -delta)
	}

	c.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Checkout turns the cart into a confirmed order, persists it and empties the cart.
// Once the order is stored it is returned without error; a cart that could not be
// emptied afterwards is only logged.
func (m *Manager) Checkout(ctx context.Context, sessionID string, mode order.DeliveryMode, customer Customer) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return order.Order{}, err
	}
	if len(c.Lines) == 0 {
		return order.Order{}, ErrEmptyCart
	}

	o := order.New(sessionID, c.Lines, mode, customer.Name, customer.Address, m.now())
	if err := m.orders.Create(ctx, o); err != nil {
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.logger.Warn("clear cart after checkout failed",
			zap.String("session_id", sessionID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}

func (c *Cart) add(entry catalog.Entry, qty int) int {
	for i := range c.Lines {
		if c.Lines[i].ItemID == entry.ID {
			c.Lines[i].Quantity += qty
			return c.Lines[i].Quantity
		}
	}
	c.Lines = append(c.Lines, order.Line{
		ItemID:   entry.ID,
		Name:     entry.Name,
		Unit:     entry.Unit,
		Price:    entry.Price,
		Quantity: qty,
	})
	return qty
}

func (c *Cart) remove(itemID string, qty int) {
	for i := range c.Lines {
		if c.Lines[i].ItemID != itemID {
			continue
		}
		c.Lines[i].Quantity -= qty
		if c.Lines[i].Quantity <= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		}
		return
	}
}
