package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/safar/go-tienda/internal/cart"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
)

// OrderInput is an order as sent by clients. Nil fields were not sent.
type OrderInput struct {
	Cliente   *string          `json:"cliente"`
	Productos []LineInput      `json:"productos"`
	Total     *decimal.Decimal `json:"total"`
	Estado    *string          `json:"estado"`
}

type LineInput struct {
	Producto string `json:"producto"`
	// Cantidad defaults to 1.
	Cantidad *int `json:"cantidad"`
}

func (in OrderInput) lines() []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(in.Productos))
	for _, l := range in.Productos {
		line := models.OrderLine{Producto: strings.TrimSpace(l.Producto), Cantidad: 1}
		if l.Cantidad != nil {
			line.Cantidad = *l.Cantidad
		}
		lines = append(lines, line)
	}
	return lines
}

func (in OrderInput) status() (models.Status, error) {
	st, err := models.ParseStatus(*in.Estado)
	if err != nil {
		return "", models.NewValidationError("estado", "estado no válido")
	}
	return st, nil
}

type OrderQuery struct {
	Status models.Status
	// Limit of zero lists every order.
	Limit int
	After *store.OrderCursor
}

type orderStore interface {
	store.ProductStore
	store.OrderStore
}

// OrderService manages orders. In strict mode the server owns totals, stock
// and the status flow; otherwise orders are stored as the client sends them.
type OrderService struct {
	store  orderStore
	strict bool
	logger *slog.Logger
}

func NewOrderService(s orderStore, strict bool, logger *slog.Logger) *OrderService {
	return &OrderService{store: s, strict: strict, logger: logger}
}

// List returns orders newest first with their products expanded. The page
// description is nil when q has no limit.
func (s *OrderService) List(ctx context.Context, q OrderQuery) ([]models.PopulatedOrder, *store.CursorPage, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, nil, models.NewValidationError("estado", "estado no válido")
	}

	f := store.OrderFilter{Status: q.Status, After: q.After}
	if q.Limit > 0 {
		if q.Limit > store.MaxPageSize {
			q.Limit = store.MaxPageSize
		}
		f.Limit = q.Limit + 1
	}

	orders, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, nil, fmt.Errorf("list orders: %w", err)
	}

	var page *store.CursorPage
	if q.Limit > 0 {
		var p store.CursorPage
		orders, p = store.TrimCursorPage(orders, q.Limit)
		page = &p
	}

	populated, err := s.populate(ctx, orders...)
	if err != nil {
		return nil, nil, err
	}
	return populated, page, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*models.PopulatedOrder, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return s.populateOne(ctx, o)
}

// Create stores a new order. Like updates, it answers with product references
// left unexpanded.
func (s *OrderService) Create(ctx context.Context, in OrderInput) (*models.Order, error) {
	o := &models.Order{
		Productos: in.lines(),
		Estado:    models.StatusPending,
	}
	if in.Cliente != nil {
		o.Cliente = strings.TrimSpace(*in.Cliente)
	}
	if in.Total != nil {
		o.Total = *in.Total
	}
	if in.Estado != nil {
		st, err := in.status()
		if err != nil {
			return nil, err
		}
		o.Estado = st
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	var (
		reserve  []store.StockChange
		products map[string]*models.Product
	)
	if s.strict {
		var err error
		if products, err = s.checkStrictOrder(ctx, o, in.Total != nil); err != nil {
			return nil, err
		}
		reserve = store.StockChanges(o.Productos)
	} else if in.Total == nil {
		return nil, models.NewValidationError("total", "es obligatorio")
	}

	if err := s.store.CreateOrder(ctx, o, reserve); err != nil {
		return nil, s.reservationError(err, products)
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", o.ID,
		"cliente", o.Cliente,
		"total", o.Total.String(),
		"lines", len(o.Productos),
	)

	return o, nil
}

// checkStrictOrder enforces the rules a new order must meet when the server
// owns order integrity. It settles o.Total and returns the referenced
// products keyed by id.
func (s *OrderService) checkStrictOrder(ctx context.Context, o *models.Order, totalSupplied bool) (map[string]*models.Product, error) {
	if len(o.Productos) == 0 {
		return nil, models.NewValidationError("productos", "debe contener al menos un producto")
	}
	if o.Estado != models.StatusPending {
		return nil, models.NewValidationError("estado", "un pedido nuevo debe estar pendiente")
	}

	products, err := s.store.GetProducts(ctx, o.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load order products: %w", err)
	}

	c := cart.New()
	for _, ch := range store.StockChanges(o.Productos) {
		p, ok := products[ch.ProductID]
		if !ok {
			return nil, models.NewValidationError("productos", fmt.Sprintf("producto no encontrado %q", ch.ProductID))
		}
		if !p.Activo {
			return nil, models.NewValidationError("productos", fmt.Sprintf("producto no disponible %q", p.Nombre))
		}
		c.Add(cart.FromProduct(p))
		c.SetQuantity(p.ID, ch.Quantity)
	}

	expected := c.Total().Round(2)
	if !totalSupplied {
		o.Total = expected
		return products, nil
	}
	if !o.Total.Round(2).Equal(expected) {
		return nil, models.NewValidationError("total", "no coincide con el importe de los productos ("+expected.StringFixed(2)+")")
	}
	return products, nil
}

func (s *OrderService) reservationError(err error, products map[string]*models.Product) error {
	var se *database.StockError
	if errors.As(err, &se) {
		nombre := se.ProductID
		if p, ok := products[se.ProductID]; ok {
			nombre = p.Nombre
		}
		return &StockShortageError{Nombre: nombre, err: err}
	}
	if errors.Is(err, database.ErrProductNotFound) {
		return models.NewValidationError("productos", "un producto del pedido ya no existe")
	}
	return fmt.Errorf("create order: %w", err)
}

// Update applies a partial update. In strict mode only cliente and estado may
// change, estado must follow the status flow, and cancelling an order that
// holds stock gives its units back.
func (s *OrderService) Update(ctx context.Context, id string, in OrderInput) (*models.Order, error) {
	var o *models.Order

	err := withVersionRetry(ctx, func() error {
		cur, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return err
		}

		release, err := s.applyPatch(cur, in)
		if err != nil {
			return err
		}
		if err := cur.Validate(); err != nil {
			return err
		}

		if err := s.store.UpdateOrder(ctx, cur, release); err != nil {
			return err
		}
		if len(release) > 0 {
			s.logger.InfoContext(ctx, "order cancelled, stock released", "order_id", cur.ID, "products", len(release))
		}
		o = cur
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}

	return o, nil
}

// applyPatch merges in over o and returns the stock to give back.
func (s *OrderService) applyPatch(o *models.Order, in OrderInput) ([]store.StockChange, error) {
	if s.strict {
		if in.Productos != nil {
			return nil, models.NewValidationError("productos", "no se puede modificar")
		}
		if in.Total != nil {
			return nil, models.NewValidationError("total", "no se puede modificar")
		}
	}

	if in.Cliente != nil {
		o.Cliente = strings.TrimSpace(*in.Cliente)
	}
	if in.Productos != nil {
		o.Productos = in.lines()
	}
	if in.Total != nil {
		o.Total = *in.Total
	}
	if in.Estado == nil {
		return nil, nil
	}

	to, err := in.status()
	if err != nil {
		return nil, err
	}
	from := o.Estado
	o.Estado = to

	if !s.strict {
		return nil, nil
	}
	if !from.CanTransition(to) {
		msg := fmt.Sprintf("no se puede pasar de %s a %s", from, to)
		if !from.Terminal() {
			msg += fmt.Sprintf(" (siguiente: %s)", from.Next())
		}
		return nil, models.NewValidationError("estado", msg)
	}
	// Only stock this order actually took goes back.
	if to == models.StatusCancelled && from != models.StatusCancelled && o.Reservado {
		o.Reservado = false
		return store.StockChanges(o.Productos), nil
	}
	return nil, nil
}

func (s *OrderService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteOrder(ctx, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "order deleted", "order_id", id)
	return nil
}

func (s *OrderService) populateOne(ctx context.Context, o *models.Order) (*models.PopulatedOrder, error) {
	out, err := s.populate(ctx, *o)
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// populate replaces product references with the products themselves, using
// one lookup for all orders.
func (s *OrderService) populate(ctx context.Context, orders ...models.Order) ([]models.PopulatedOrder, error) {
	seen := make(map[string]struct{})
	var ids []string
	for i := range orders {
		for _, id := range orders[i].ProductIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	products := map[string]*models.Product{}
	if len(ids) > 0 {
		var err error
		if products, err = s.store.GetProducts(ctx, ids); err != nil {
			return nil, fmt.Errorf("load order products: %w", err)
		}
	}

	out := make([]models.PopulatedOrder, 0, len(orders))
	for i := range orders {
		out = append(out, orders[i].Populate(products))
	}
	return out, nil
}
