// Package catalog holds the read-only product list the assistant and cart resolve against.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryGrocery      Category = "Grocery"
	CategoryPersonalCare Category = "Personal Care"
	CategoryFashion      Category = "Fashion"
	CategoryHousehold    Category = "Household"
	CategoryBeauty       Category = "Beauty"
)

var ErrInvalidEntry = errors.New("invalid catalog entry")

// Entry is one purchasable product.
type Entry struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Unit     string   `json:"unit" yaml:"unit"`
	Price    float64  `json:"price" yaml:"price"`
	Category Category `json:"category,omitempty" yaml:"category,omitempty"`
	Image    string   `json:"image,omitempty" yaml:"image,omitempty"`
	Stock    int      `json:"stock" yaml:"stock"`
}

// Store describes the shop the catalog belongs to.
type Store struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Address          string   `json:"address" yaml:"address"`
	RadiusKm         float64  `json:"radius_km" yaml:"radius_km"`
	SocietiesCovered []string `json:"societies_covered" yaml:"societies_covered"`
}

// Catalog is an ordered, id-indexed product list. It is never mutated after New.
type Catalog struct {
	store   Store
	entries []Entry
	byID    map[string]int
}

// New validates entries and builds a catalog preserving their order.
func New(store Store, entries []Entry) (*Catalog, error) {
	c := &Catalog{
		store:   store,
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		e.Name = strings.TrimSpace(e.Name)
		e.Unit = strings.TrimSpace(e.Unit)
		switch {
		case e.ID == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidEntry, i)
		case e.Name == "":
			return nil, fmt.Errorf("%w: %s has no name", ErrInvalidEntry, e.ID)
		case e.Price <= 0:
			return nil, fmt.Errorf("%w: %s price must be positive", ErrInvalidEntry, e.ID)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidEntry, e.ID)
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

func (c *Catalog) Store() Store { return c.store }

func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns a copy of the catalog in its original order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup resolves an entry by id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// ByCategory returns the entries of one category, or all of them for "" and "All".
func (c *Catalog) ByCategory(category string) []Entry {
	category = strings.TrimSpace(category)
	if category == "" || strings.EqualFold(category, "all") {
		return c.Entries()
	}
	var out []Entry
	for _, e := range c.entries {
		if strings.EqualFold(string(e.Category), category) {
			out = append(out, e)
		}
	}
	return out
}
