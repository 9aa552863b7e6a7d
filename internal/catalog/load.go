package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type file struct {
	Store    Store   `json:"store" yaml:"store"`
	Products []Entry `json:"products" yaml:"products"`
}

// Load reads a catalog from a YAML or JSON file, falling back to Default for an empty path.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes catalog bytes. ext selects the format (".json", otherwise YAML).
func Parse(raw []byte, ext string) (*Catalog, error) {
	var f file
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode catalog json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("%w: catalog has no products", ErrInvalidEntry)
	}
	return New(f.Store, f.Products)
}

// Default is the demo inventory of the neighborhood store.
func Default() *Catalog {
	c, err := New(defaultStore, defaultEntries)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultStore = Store{
	ID:               "st-001",
	Name:             "Ganesh Kirana & General Store",
	Address:          "Building B-12, Green Valleys, Mumbai",
	RadiusKm:         5,
	SocietiesCovered: []string{"Green Valleys", "Blue Bells", "Silver Oaks", "Palace Heights", "Harmony Homes"},
}

var defaultEntries = []Entry{
	{ID: "1", Name: "Aashirvaad Select Atta", Price: 285, Category: CategoryGrocery, Unit: "5kg", Stock: 50},
	{ID: "2", Name: "Tata Salt (Iodized)", Price: 28, Category: CategoryGrocery, Unit: "1kg", Stock: 100},
	{ID: "3", Name: "Fortune Soya Health Oil", Price: 155, Category: CategoryGrocery, Unit: "1L", Stock: 40},
	{ID: "4", Name: "Dove Cream Bar", Price: 52, Category: CategoryBeauty, Unit: "100g", Stock: 30},
	{ID: "5", Name: "Ponds White Beauty Cream", Price: 210, Category: CategoryBeauty, Unit: "50g", Stock: 20},
	{ID: "6", Name: "Mens Plain White Tee", Price: 399, Category: CategoryFashion, Unit: "L", Stock: 15},
	{ID: "7", Name: "Microfiber Floor Mop", Price: 249, Category: CategoryHousehold, Unit: "Piece", Stock: 60},
	{ID: "8", Name: "Colgate MaxFresh Gel", Price: 95, Category: CategoryPersonalCare, Unit: "150g", Stock: 45},
	{ID: "9", Name: "Amul Gold Milk", Price: 33, Category: CategoryGrocery, Unit: "500ml", Stock: 80},
	{ID: "10", Name: "Basmati Rice (Organic)", Price: 120, Category: CategoryGrocery, Unit: "1kg", Stock: 150},
}
