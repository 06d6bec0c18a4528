// Package store defines the persistence ports for products and orders. The
// mongostore, pgstore and memstore subpackages implement them.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/safar/go-tienda/internal/models"
	"github.com/shopspring/decimal"
)

type ProductStore interface {
	// ListProducts returns the products matching f together with the number
	// of matches before Offset and Limit are applied.
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int64, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	// GetProducts looks up several products at once. Ids that do not exist
	// are absent from the result.
	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	// CreateProduct assigns the id, timestamps and version of p.
	CreateProduct(ctx context.Context, p *models.Product) error
	// UpdateProduct stores p if the stored version still equals p.Version,
	// and fails with database.ErrOptimisticLockFailed otherwise.
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type OrderStore interface {
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// CreateOrder inserts o after taking reserve out of product stock. Either
	// both happen or neither does; a short product fails with a
	// *database.StockError.
	CreateOrder(ctx context.Context, o *models.Order, reserve []StockChange) error
	// UpdateOrder stores o if the stored version still equals o.Version and
	// gives release back to the stock of the products that still exist.
	UpdateOrder(ctx context.Context, o *models.Order, release []StockChange) error
	DeleteOrder(ctx context.Context, id string) error
}

type Store interface {
	ProductStore
	OrderStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type StockChange struct {
	ProductID string
	Quantity  int
}

// StockChanges sums the quantities per product in line order.
func StockChanges(lines []models.OrderLine) []StockChange {
	idx := make(map[string]int, len(lines))
	var out []StockChange
	for _, l := range lines {
		if i, ok := idx[l.Producto]; ok {
			out[i].Quantity += l.Cantidad
			continue
		}
		idx[l.Producto] = len(out)
		out = append(out, StockChange{ProductID: l.Producto, Quantity: l.Cantidad})
	}
	return out
}

type ProductFilter struct {
	// Query matches products whose name contains it, ignoring case.
	Query    string
	Active   *bool
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     Sort
	Offset   int
	// Limit of zero returns every match.
	Limit int
}

type OrderFilter struct {
	Status models.Status
	// After restricts the list to orders older than the cursor.
	After *OrderCursor
	Limit int
}

const (
	SortByName      = "nombre"
	SortByPrice     = "precio"
	SortByStock     = "stock"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
)

// Sort orders product listings. The zero value keeps creation order.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads a sort expression such as "precio" or "-createdAt".
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sort{Field: SortByCreatedAt}, nil
	}

	var sort Sort
	if strings.HasPrefix(s, "-") {
		sort.Desc = true
		s = s[1:]
	}

	switch s {
	case SortByName, SortByPrice, SortByStock, SortByCreatedAt, SortByUpdatedAt:
		sort.Field = s
		return sort, nil
	}
	return Sort{}, fmt.Errorf("campo de orden no válido %q", s)
}

func (s Sort) FieldOrDefault() string {
	if s.Field == "" {
		return SortByCreatedAt
	}
	return s.Field
}
