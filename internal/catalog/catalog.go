// Package catalog is the terminal's read-only product view, loaded once at
// startup and filtered purely in memory while the cashier types.
package catalog

import (
	"strings"

	"salepoint/internal/domain"
)

type Catalog struct {
	products []domain.Product
	byID     map[string]domain.Product
}

// Load snapshots the given products. Later stock changes on the server are
// not reflected; the snapshot is what the cart uses as its stock limits.
func Load(products []domain.Product) *Catalog {
	c := &Catalog{
		products: make([]domain.Product, 0, len(products)),
		byID:     make(map[string]domain.Product, len(products)),
	}
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		c.products = append(c.products, p)
		c.byID[p.ID] = p
	}
	return c
}

func (c *Catalog) Get(id string) (domain.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) Len() int {
	return len(c.products)
}

// Filter returns the products whose name or barcode contains the query
// (case-insensitive) and whose category matches exactly. Empty arguments
// match everything; order is the load order.
func (c *Catalog) Filter(query, category string) []domain.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.TrimSpace(category)

	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Barcode), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}
