//go:build integration

package mongostore

import (
	"context"
	"testing"

	"github.com/safar/go-tienda/internal/config"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestStore(t *testing.T) *Store {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := database.NewMongo(ctx, &config.MongoConfig{URI: uri, Database: "tienda_test", MaxPoolSize: 10})
	require.NoError(t, err)

	s := New(db)
	require.NoError(t, s.CreateIndexes(ctx))
	t.Cleanup(func() { _ = s.Close(ctx) })

	return s
}

func createProduct(t *testing.T, s *Store, nombre, precio string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Nombre: nombre, Precio: decimal.RequireFromString(precio), Stock: stock, Activo: true}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestProducts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mouse := createProduct(t, s, "Mouse", "10.50", 5)
	createProduct(t, s, "Mouse (inalámbrico)", "25", 3)
	createProduct(t, s, "Teclado", "80", 2)

	assert.Len(t, mouse.ID, 24)
	assert.Equal(t, 0, mouse.Version)

	got, err := s.GetProduct(ctx, mouse.ID)
	require.NoError(t, err)
	assert.True(t, got.Precio.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, got.CreatedAt.Equal(mouse.CreatedAt))

	_, err = s.GetProduct(ctx, "xyz")
	assert.ErrorIs(t, err, database.ErrProductNotFound)

	list, total, err := s.ListProducts(ctx, store.ProductFilter{Query: "mouse ("})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "Mouse (inalámbrico)", list[0].Nombre)

	minPrice := decimal.NewFromInt(20)
	list, total, err = s.ListProducts(ctx, store.ProductFilter{
		MinPrice: &minPrice,
		Sort:     store.Sort{Field: store.SortByPrice, Desc: true},
		Offset:   1,
		Limit:    5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, "Mouse (inalámbrico)", list[0].Nombre)

	got.Stock = 4
	require.NoError(t, s.UpdateProduct(ctx, got))
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, 4, got.Stock)

	assert.ErrorIs(t, s.UpdateProduct(ctx, mouse), database.ErrOptimisticLockFailed)

	found, err := s.GetProducts(ctx, []string{mouse.ID, "bad"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, s.DeleteProduct(ctx, mouse.ID))
	assert.ErrorIs(t, s.DeleteProduct(ctx, mouse.ID), database.ErrProductNotFound)
}

func TestCreateOrderRollsBackReservations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mouse := createProduct(t, s, "Mouse", "10", 5)
	teclado := createProduct(t, s, "Teclado", "80", 1)

	o := &models.Order{
		Cliente: "Ana",
		Productos: []models.OrderLine{
			{Producto: mouse.ID, Cantidad: 2},
			{Producto: teclado.ID, Cantidad: 3},
		},
		Estado: models.StatusPending,
	}
	err := s.CreateOrder(ctx, o, store.StockChanges(o.Productos))
	var se *database.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, teclado.ID, se.ProductID)

	after, err := s.GetProduct(ctx, mouse.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Stock)

	o.Productos = o.Productos[:1]
	o.Total = decimal.NewFromInt(20)
	require.NoError(t, s.CreateOrder(ctx, o, store.StockChanges(o.Productos)))

	after, err = s.GetProduct(ctx, mouse.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Cliente)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, []models.OrderLine{{Producto: mouse.ID, Cantidad: 2}}, got.Productos)
	assert.True(t, got.Reservado)

	got.Estado = models.StatusCancelled
	got.Reservado = false
	require.NoError(t, s.UpdateOrder(ctx, got, store.StockChanges(got.Productos)))
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.Reservado)

	after, err = s.GetProduct(ctx, mouse.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Stock)

	got.Version = 0
	assert.ErrorIs(t, s.UpdateOrder(ctx, got, nil), database.ErrOptimisticLockFailed)
}

func TestOrderLineReferencesMustBeObjectIDs(t *testing.T) {
	s := setupTestStore(t)

	err := s.CreateOrder(context.Background(), &models.Order{
		Cliente:   "Ana",
		Productos: []models.OrderLine{{Producto: "abc", Cantidad: 1}},
		Estado:    models.StatusPending,
	}, nil)
	assert.True(t, models.IsValidationError(err))
}

func TestListOrdersCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateOrder(ctx, &models.Order{Cliente: c, Estado: models.StatusPending}, nil))
	}

	first, err := s.ListOrders(ctx, store.OrderFilter{Limit: 3})
	require.NoError(t, err)
	page, meta := store.TrimCursorPage(first, 2)
	require.True(t, meta.HasMore)
	assert.Equal(t, "c", page[0].Cliente)

	cursor, err := store.DecodeCursor(meta.NextCursor)
	require.NoError(t, err)
	rest, err := s.ListOrders(ctx, store.OrderFilter{After: cursor, Limit: 3})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].Cliente)

	require.NoError(t, s.DeleteOrder(ctx, rest[0].ID))
	assert.ErrorIs(t, s.DeleteOrder(ctx, rest[0].ID), database.ErrOrderNotFound)
}
