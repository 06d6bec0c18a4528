package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
)

const orderColumns = "id, cliente, total, estado, reservado, created_at, updated_at, version"

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID,
		&o.Cliente,
		&o.Total,
		&o.Estado,
		&o.Reservado,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "estado = "+arg(f.Status))
	}
	if f.After != nil {
		if !validID(f.After.ID) {
			return nil, models.NewValidationError("cursor", "no es válido")
		}
		conds = append(conds, "(created_at, id) < ("+arg(f.After.CreatedAt)+", "+arg(f.After.ID)+")")
	}

	query := "SELECT " + orderColumns + " FROM pedidos"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := loadLines(ctx, s.db, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if !validID(id) {
		return nil, database.ErrOrderNotFound
	}

	query := `
		SELECT ` + orderColumns + `
		FROM pedidos
		WHERE id = $1`

	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []models.Order{*o}
	if err := loadLines(ctx, s.db, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

// loadLines fills the Productos of every order with a single query.
func loadLines(ctx context.Context, q querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	idx := make(map[string]int, len(orders))
	ids := make([]string, 0, len(orders))
	for i := range orders {
		idx[orders[i].ID] = i
		ids = append(ids, orders[i].ID)
		orders[i].Productos = []models.OrderLine{}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT pedido_id, producto_id, cantidad
		 FROM pedido_lineas
		 WHERE pedido_id = ANY($1::uuid[])
		 ORDER BY pedido_id, posicion`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			line    models.OrderLine
		)
		if err := rows.Scan(&orderID, &line.Producto, &line.Cantidad); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		i := idx[orderID]
		orders[i].Productos = append(orders[i].Productos, line)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func insertLines(ctx context.Context, tx *sql.Tx, orderID string, lines []models.OrderLine) error {
	for i, line := range lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pedido_lineas (pedido_id, posicion, producto_id, cantidad)
			 VALUES ($1, $2, $3, $4)`,
			orderID, i, line.Producto, line.Cantidad)
		if err != nil {
			return fmt.Errorf("create order line: %w", err)
		}
	}
	return nil
}

func checkLineRefs(lines []models.OrderLine) error {
	for _, line := range lines {
		if !validID(line.Producto) {
			return models.NewValidationError("productos", fmt.Sprintf("referencia de producto no válida %q", line.Producto))
		}
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order, reserve []store.StockChange) error {
	if err := checkLineRefs(o.Productos); err != nil {
		return err
	}

	var (
		id                   string
		createdAt, updatedAt time.Time
		version              int
		reserved             = len(reserve) > 0
	)

	err := database.WithRetry(ctx, s.db, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		for _, r := range reserve {
			if !validID(r.ProductID) {
				return database.ErrProductNotFound
			}

			ok, err := adjustStock(ctx, tx, r.ProductID, -r.Quantity)
			if err != nil {
				return err
			}
			if ok {
				continue
			}

			found, err := exists(ctx, tx, "productos", r.ProductID)
			if err != nil {
				return fmt.Errorf("check product exists: %w", err)
			}
			if !found {
				return database.ErrProductNotFound
			}
			return &database.StockError{ProductID: r.ProductID, Requested: r.Quantity}
		}

		id = uuid.NewString()
		err := tx.QueryRowContext(ctx,
			`INSERT INTO pedidos (id, cliente, total, estado, reservado, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 0)
			 RETURNING created_at, updated_at, version`,
			id, o.Cliente, o.Total, o.Estado, reserved).Scan(&createdAt, &updatedAt, &version)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		return insertLines(ctx, tx, id, o.Productos)
	})
	if err != nil {
		return err
	}

	o.ID = id
	o.Reservado = reserved
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	o.Version = version
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *models.Order, release []store.StockChange) error {
	if !validID(o.ID) {
		return database.ErrOrderNotFound
	}
	if err := checkLineRefs(o.Productos); err != nil {
		return err
	}

	var (
		createdAt, updatedAt time.Time
		version              int
	)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE pedidos
			 SET cliente = $1, total = $2, estado = $3, reservado = $4,
			     version = version + 1, updated_at = NOW()
			 WHERE id = $5 AND version = $6
			 RETURNING created_at, updated_at, version`,
			o.Cliente, o.Total, o.Estado, o.Reservado, o.ID, o.Version).Scan(&createdAt, &updatedAt, &version)
		if errors.Is(err, sql.ErrNoRows) {
			found, err := exists(ctx, tx, "pedidos", o.ID)
			if err != nil {
				return fmt.Errorf("check order exists: %w", err)
			}
			if !found {
				return database.ErrOrderNotFound
			}
			return database.ErrOptimisticLockFailed
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM pedido_lineas WHERE pedido_id = $1", o.ID); err != nil {
			return fmt.Errorf("clear order lines: %w", err)
		}
		if err := insertLines(ctx, tx, o.ID, o.Productos); err != nil {
			return err
		}

		for _, r := range release {
			if !validID(r.ProductID) {
				continue
			}
			if _, err := adjustStock(ctx, tx, r.ProductID, r.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	o.Version = version
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	if !validID(id) {
		return database.ErrOrderNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM pedidos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}
