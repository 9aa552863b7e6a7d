package policy

import "fmt"

// DefaultMaxPerItem is the per-item ceiling (units or kilograms) for one order.
const DefaultMaxPerItem = 5

// Admission reasons reported by Ordering.Admit.
const (
	ReasonInvalidQuantity = "invalid_quantity"
	ReasonCapReached      = "cap_reached"
	ReasonCapExceeded     = "cap_exceeded"
)

// Ordering holds the ordering rules shared by the assistant prompt and the cart.
type Ordering struct {
	MaxPerItem int
}

// DefaultOrdering returns the ordering rules observed in the store.
func DefaultOrdering() Ordering {
	return Ordering{MaxPerItem: DefaultMaxPerItem}
}

// Cap returns the effective per-item ceiling.
func (o Ordering) Cap() int {
	if o.MaxPerItem <= 0 {
		return DefaultMaxPerItem
	}
	return o.MaxPerItem
}

// Admission is the outcome of checking one requested addition against the cap.
type Admission struct {
	// Quantity is what may be added: all of requested, or zero when Rejected.
	Quantity int
	Rejected bool
	Reason   string
}

// Admit decides whether requested can be added to a line already holding existing.
// A request that would take the line over the cap is refused whole, never shortened.
func (o Ordering) Admit(existing, requested int) Admission {
	if requested <= 0 {
		return Admission{Rejected: true, Reason: ReasonInvalidQuantity}
	}
	if existing < 0 {
		existing = 0
	}
	room := o.Cap() - existing
	if room <= 0 {
		return Admission{Rejected: true, Reason: ReasonCapReached}
	}
	if requested > room {
		return Admission{Rejected: true, Reason: ReasonCapExceeded}
	}
	return Admission{Quantity: requested}
}

// Exceeds reports whether requested alone is over the cap.
func (o Ordering) Exceeds(requested int) bool {
	return requested > o.Cap()
}

// CapNotice is the English explanation used when a request is over the cap.
func (o Ordering) CapNotice(itemName string, requested int) string {
	return fmt.Sprintf(
		"Sorry, we can add at most %d per item in one order, so I haven't added %d of %s. You can order up to %d now and place another order for the rest.",
		o.Cap(), requested, itemName, o.Cap(),
	)
}
