// Package memstore keeps products and orders in process memory. It backs
// STORE_DRIVER=memory and the handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	products map[string]models.Product
	orders   map[string]models.Order
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) ListProducts(_ context.Context, f store.ProductFilter) ([]models.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(f.Query)
	var matches []models.Product
	for _, p := range s.products {
		if q != "" && !strings.Contains(strings.ToLower(p.Nombre), q) {
			continue
		}
		if f.Active != nil && p.Activo != *f.Active {
			continue
		}
		if f.MinPrice != nil && p.Precio.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Precio.GreaterThan(*f.MaxPrice) {
			continue
		}
		matches = append(matches, p)
	}

	sortProducts(matches, f.Sort)

	total := int64(len(matches))
	if f.Offset > 0 {
		if f.Offset >= len(matches) {
			matches = nil
		} else {
			matches = matches[f.Offset:]
		}
	}
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	if matches == nil {
		matches = []models.Product{}
	}
	return matches, total, nil
}

func sortProducts(ps []models.Product, s store.Sort) {
	less := func(a, b models.Product) int {
		switch s.FieldOrDefault() {
		case store.SortByName:
			return strings.Compare(a.Nombre, b.Nombre)
		case store.SortByPrice:
			return a.Precio.Cmp(b.Precio)
		case store.SortByStock:
			return a.Stock - b.Stock
		case store.SortByUpdatedAt:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.SliceStable(ps, func(i, j int) bool {
		c := less(ps[i], ps[j])
		if c == 0 {
			c = ps[i].CreatedAt.Compare(ps[j].CreatedAt)
			if c == 0 {
				c = strings.Compare(ps[i].ID, ps[j].ID)
			}
			return c < 0
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *Store) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) GetProducts(_ context.Context, ids []string) (map[string]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 0
	s.products[p.ID] = *p
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.products[p.ID]
	if !ok {
		return database.ErrProductNotFound
	}
	if cur.Version != p.Version {
		return database.ErrOptimisticLockFailed
	}

	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now()
	p.Version++
	s.products[p.ID] = *p
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return database.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context, f store.OrderFilter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Order
	for _, o := range s.orders {
		if f.Status != "" && o.Estado != f.Status {
			continue
		}
		if f.After != nil && !olderThan(o, f.After) {
			continue
		}
		out = append(out, cloneOrder(o))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	if out == nil {
		out = []models.Order{}
	}
	return out, nil
}

func olderThan(o models.Order, c *store.OrderCursor) bool {
	if o.CreatedAt.Equal(c.CreatedAt) {
		return o.ID < c.ID
	}
	return o.CreatedAt.Before(c.CreatedAt)
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *Store) CreateOrder(_ context.Context, o *models.Order, reserve []store.StockChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range reserve {
		p, ok := s.products[r.ProductID]
		if !ok {
			return database.ErrProductNotFound
		}
		if p.Stock < r.Quantity {
			return &database.StockError{ProductID: r.ProductID, Requested: r.Quantity}
		}
	}

	now := s.now()
	for _, r := range reserve {
		s.adjustStock(r.ProductID, -r.Quantity, now)
	}

	o.ID = uuid.NewString()
	o.Reservado = len(reserve) > 0
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 0
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) UpdateOrder(_ context.Context, o *models.Order, release []store.StockChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[o.ID]
	if !ok {
		return database.ErrOrderNotFound
	}
	if cur.Version != o.Version {
		return database.ErrOptimisticLockFailed
	}

	now := s.now()
	for _, r := range release {
		s.adjustStock(r.ProductID, r.Quantity, now)
	}

	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = now
	o.Version++
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return database.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

// adjustStock must be called with s.mu held. Missing products are skipped.
func (s *Store) adjustStock(id string, delta int, now time.Time) {
	p, ok := s.products[id]
	if !ok {
		return
	}
	p.Stock += delta
	p.UpdatedAt = now
	p.Version++
	s.products[id] = p
}

func cloneOrder(o models.Order) models.Order {
	o.Productos = append([]models.OrderLine(nil), o.Productos...)
	return o
}
