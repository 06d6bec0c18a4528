// Package cart holds the shopping cart a client builds before placing an
// order. A cart lives only in memory and is never persisted.
package cart

import (
	"github.com/safar/go-tienda/internal/models"
	"github.com/shopspring/decimal"
)

type Item struct {
	Producto string          `json:"producto"`
	Nombre   string          `json:"nombre"`
	Precio   decimal.Decimal `json:"precio"`
	Imagen   string          `json:"imagen,omitempty"`
	Cantidad int             `json:"cantidad"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Precio.Mul(decimal.NewFromInt(int64(i.Cantidad)))
}

// Cart keeps its items in insertion order, one item per product id.
type Cart struct {
	items []Item
}

func New() *Cart {
	return &Cart{}
}

// FromProduct builds a cart item for one unit of p.
func FromProduct(p *models.Product) Item {
	return Item{
		Producto: p.ID,
		Nombre:   p.Nombre,
		Precio:   p.Precio,
		Imagen:   p.Imagen,
		Cantidad: 1,
	}
}

func (c *Cart) index(productID string) int {
	for i := range c.items {
		if c.items[i].Producto == productID {
			return i
		}
	}
	return -1
}

// Add puts one more unit of item in the cart. The quantity carried by item
// is ignored.
func (c *Cart) Add(item Item) {
	if i := c.index(item.Producto); i >= 0 {
		c.items[i].Cantidad++
		return
	}
	item.Cantidad = 1
	c.items = append(c.items, item)
}

func (c *Cart) Remove(productID string) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

// SetQuantity overwrites the quantity of a product already in the cart.
// A quantity of zero or less removes it.
func (c *Cart) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.Remove(productID)
		return
	}
	if i := c.index(productID); i >= 0 {
		c.items[i].Cantidad = quantity
	}
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Count is the number of units in the cart, not the number of lines.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.Cantidad
	}
	return n
}

func (c *Cart) Clear() {
	c.items = nil
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) Empty() bool {
	return len(c.items) == 0
}

func (c *Cart) Items() []Item {
	return append([]Item(nil), c.items...)
}

// Lines converts the cart to the order lines expected by the orders API.
func (c *Cart) Lines() []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(c.items))
	for _, it := range c.items {
		lines = append(lines, models.OrderLine{Producto: it.Producto, Cantidad: it.Cantidad})
	}
	return lines
}
