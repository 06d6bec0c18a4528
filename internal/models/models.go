package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices and totals go over the wire as JSON numbers, the way the UI clients send them.
	decimal.MarshalJSONWithoutQuotes = true
}

type Product struct {
	ID        string          `json:"_id"`
	Nombre    string          `json:"nombre" validate:"required,max=200"`
	Precio    decimal.Decimal `json:"precio" validate:"gte=0"`
	Stock     int             `json:"stock" validate:"gte=0"`
	Activo    bool            `json:"activo"`
	Imagen    string          `json:"imagen,omitempty" validate:"max=2048"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Version   int             `json:"__v"`
}

type Order struct {
	ID        string          `json:"_id"`
	Cliente   string          `json:"cliente" validate:"required,max=200"`
	Productos []OrderLine     `json:"productos" validate:"dive"`
	Total     decimal.Decimal `json:"total" validate:"gte=0"`
	Estado    Status          `json:"estado" validate:"required,status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Version   int             `json:"__v"`
	// Reservado is set while the line quantities are held out of product
	// stock on behalf of the order.
	Reservado bool `json:"-"`
}

type OrderLine struct {
	Producto string `json:"producto" validate:"required"`
	Cantidad int    `json:"cantidad" validate:"gte=1"`
}

// PopulatedOrder is an Order whose line references were replaced by the
// product documents they point at. A nil Producto marks a deleted product.
type PopulatedOrder struct {
	ID        string          `json:"_id"`
	Cliente   string          `json:"cliente"`
	Productos []PopulatedLine `json:"productos"`
	Total     decimal.Decimal `json:"total"`
	Estado    Status          `json:"estado"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Version   int             `json:"__v"`
}

type PopulatedLine struct {
	Producto *Product `json:"producto"`
	Cantidad int      `json:"cantidad"`
}

// ProductIDs returns the distinct product ids referenced by the order, in
// line order.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Productos))
	ids := make([]string, 0, len(o.Productos))
	for _, line := range o.Productos {
		if _, ok := seen[line.Producto]; ok {
			continue
		}
		seen[line.Producto] = struct{}{}
		ids = append(ids, line.Producto)
	}
	return ids
}

// Populate expands the order lines with the given products, keyed by id.
func (o *Order) Populate(products map[string]*Product) PopulatedOrder {
	lines := make([]PopulatedLine, 0, len(o.Productos))
	for _, line := range o.Productos {
		lines = append(lines, PopulatedLine{
			Producto: products[line.Producto],
			Cantidad: line.Cantidad,
		})
	}

	return PopulatedOrder{
		ID:        o.ID,
		Cliente:   o.Cliente,
		Productos: lines,
		Total:     o.Total,
		Estado:    o.Estado,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Version:   o.Version,
	}
}
