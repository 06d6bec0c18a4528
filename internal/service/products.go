package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
)

// ProductInput is a product as sent by clients. Nil fields were not sent.
type ProductInput struct {
	Nombre *string          `json:"nombre"`
	Precio *decimal.Decimal `json:"precio"`
	Stock  *int             `json:"stock"`
	Activo *bool            `json:"activo"`
	Imagen *string          `json:"imagen"`
}

// applyTo merges the supplied fields over p.
func (in ProductInput) applyTo(p *models.Product) {
	if in.Nombre != nil {
		p.Nombre = strings.TrimSpace(*in.Nombre)
	}
	if in.Precio != nil {
		p.Precio = *in.Precio
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Activo != nil {
		p.Activo = *in.Activo
	}
	if in.Imagen != nil {
		p.Imagen = strings.TrimSpace(*in.Imagen)
	}
}

type ProductQuery struct {
	Query    string
	Active   *bool
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     store.Sort
	// Page starts at 1. Both are ignored unless Limit is positive.
	Page  int
	Limit int
}

type ProductService struct {
	store  store.ProductStore
	logger *slog.Logger
}

func NewProductService(s store.ProductStore, logger *slog.Logger) *ProductService {
	return &ProductService{store: s, logger: logger}
}

// List returns the matching products. The page description is nil when q
// does not ask for a page.
func (s *ProductService) List(ctx context.Context, q ProductQuery) ([]models.Product, *store.OffsetPage, error) {
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, nil, models.NewValidationError("minPrecio", "no puede superar maxPrecio")
	}

	f := store.ProductFilter{
		Query:    strings.TrimSpace(q.Query),
		Active:   q.Active,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Sort:     q.Sort,
	}

	paged := q.Limit > 0
	if paged {
		if q.Limit > store.MaxPageSize {
			q.Limit = store.MaxPageSize
		}
		if q.Page < 1 {
			q.Page = 1
		}
		f.Limit = q.Limit
		f.Offset = (q.Page - 1) * q.Limit
	}

	products, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("list products: %w", err)
	}

	if !paged {
		return products, nil, nil
	}
	page := store.NewOffsetPage(total, q.Page, q.Limit)
	return products, &page, nil
}

func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if in.Precio == nil {
		return nil, models.NewValidationError("precio", "es obligatorio")
	}

	p := &models.Product{Activo: true}
	in.applyTo(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.InfoContext(ctx, "product created", "product_id", p.ID, "nombre", p.Nombre)
	return p, nil
}

// Update merges in over the stored product. The write is conditional on the
// version read, and a lost race starts over from a fresh read.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	var p *models.Product

	err := withVersionRetry(ctx, func() error {
		cur, err := s.store.GetProduct(ctx, id)
		if err != nil {
			return err
		}

		in.applyTo(cur)
		if err := cur.Validate(); err != nil {
			return err
		}

		if err := s.store.UpdateProduct(ctx, cur); err != nil {
			return err
		}
		p = cur
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}

	return p, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}
