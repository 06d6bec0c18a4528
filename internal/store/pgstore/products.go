package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
)

const productColumns = "id, nombre, precio, stock, activo, imagen, created_at, updated_at, version"

var sortColumns = map[string]string{
	store.SortByName:      "nombre",
	store.SortByPrice:     "precio",
	store.SortByStock:     "stock",
	store.SortByCreatedAt: "created_at",
	store.SortByUpdatedAt: "updated_at",
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID,
		&p.Nombre,
		&p.Precio,
		&p.Stock,
		&p.Activo,
		&p.Imagen,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int64, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Query != "" {
		conds = append(conds, "nombre ILIKE "+arg(containsPattern(f.Query))+` ESCAPE '\'`)
	}
	if f.Active != nil {
		conds = append(conds, "activo = "+arg(*f.Active))
	}
	if f.MinPrice != nil {
		conds = append(conds, "precio >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "precio <= "+arg(*f.MaxPrice))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM productos"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	dir := "ASC"
	if f.Sort.Desc {
		dir = "DESC"
	}
	query := "SELECT " + productColumns + " FROM productos" + where +
		" ORDER BY " + sortColumns[f.Sort.FieldOrDefault()] + " " + dir + ", created_at, id"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return products, total, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if !validID(id) {
		return nil, database.ErrProductNotFound
	}

	query := `
		SELECT ` + productColumns + `
		FROM productos
		WHERE id = $1`

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return p, nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	ids = validIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + productColumns + `
		FROM productos
		WHERE id = ANY($1::uuid[])`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	id := uuid.NewString()

	query := `
		INSERT INTO productos (id, nombre, precio, stock, activo, imagen, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 0)
		RETURNING created_at, updated_at, version`

	err := s.db.QueryRowContext(ctx, query, id, p.Nombre, p.Precio, p.Stock, p.Activo, p.Imagen).Scan(
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	p.ID = id
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	if !validID(p.ID) {
		return database.ErrProductNotFound
	}

	query := `
		UPDATE productos
		SET nombre = $1, precio = $2, stock = $3, activo = $4, imagen = $5,
		    version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
		RETURNING created_at, updated_at, version`

	err := s.db.QueryRowContext(ctx, query,
		p.Nombre, p.Precio, p.Stock, p.Activo, p.Imagen, p.ID, p.Version,
	).Scan(&p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update product: %w", err)
	}

	found, err := exists(ctx, s.db, "productos", p.ID)
	if err != nil {
		return fmt.Errorf("check product exists: %w", err)
	}
	if !found {
		return database.ErrProductNotFound
	}
	return database.ErrOptimisticLockFailed
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return database.ErrProductNotFound
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM productos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// adjustStock adds delta to the stock of id. With a negative delta the update
// only applies while enough stock remains.
func adjustStock(ctx context.Context, tx *sql.Tx, id string, delta int) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE productos
		 SET stock = stock + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock + $1 >= 0`,
		delta, id)
	if err != nil {
		return false, fmt.Errorf("update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
