// Package cart holds the shopper's cart: product id to requested quantity.
//
// A Cart has no server authority. Prices are always resolved against a
// Catalog at the moment they are needed, so a cart never goes stale when a
// product is repriced or removed.
package cart

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Catalog resolves the current unit price of a product.
type Catalog interface {
	Price(productID string) (decimal.Decimal, bool)
}

// PriceList is a Catalog backed by a plain map.
type PriceList map[string]decimal.Decimal

func (p PriceList) Price(productID string) (decimal.Decimal, bool) {
	v, ok := p[productID]
	return v, ok
}

type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	lines map[string]int
}

func New() *Cart {
	return &Cart{lines: make(map[string]int)}
}

// Restore builds a cart from a snapshot, skipping non-positive quantities.
func Restore(snapshot map[string]int) *Cart {
	c := New()
	for id, q := range snapshot {
		c.SetQuantity(id, q)
	}
	return c
}

func (c *Cart) Add(productID string) {
	c.lines[productID]++
}

func (c *Cart) Remove(productID string) {
	delete(c.lines, productID)
}

func (c *Cart) SetQuantity(productID string, q int) {
	if q <= 0 {
		delete(c.lines, productID)
		return
	}
	c.lines[productID] = q
}

func (c *Cart) Quantity(productID string) int {
	return c.lines[productID]
}

func (c *Cart) Count() int {
	n := 0
	for _, q := range c.lines {
		n += q
	}
	return n
}

// Amount is the subtotal over lines whose product still resolves.
func (c *Cart) Amount(catalog Catalog) decimal.Decimal {
	total := decimal.Zero
	for id, q := range c.lines {
		price, ok := catalog.Price(id)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(q))))
	}
	return total
}

// Prune drops lines whose product no longer resolves and returns their ids.
func (c *Cart) Prune(catalog Catalog) []string {
	var dropped []string
	for id := range c.lines {
		if _, ok := catalog.Price(id); !ok {
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	for _, id := range dropped {
		delete(c.lines, id)
	}
	return dropped
}

// Lines returns the cart contents ordered by product id.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.lines))
	for id, q := range c.lines {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (c *Cart) Empty() bool { return len(c.lines) == 0 }

func (c *Cart) Clear() {
	c.lines = make(map[string]int)
}

// Snapshot is the persistable form of the cart.
func (c *Cart) Snapshot() map[string]int {
	out := make(map[string]int, len(c.lines))
	for id, q := range c.lines {
		out[id] = q
	}
	return out
}
