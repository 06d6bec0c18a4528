// Package service implements the product and order use cases on top of the
// store ports.
package service

import (
	"context"
	"errors"

	"github.com/safar/go-tienda/internal/database"
)

// maxLockRetries bounds how often a read-modify-write is restarted after
// another writer bumped the document version.
const maxLockRetries = 3

// StockShortageError reports a product whose stock cannot cover an order.
type StockShortageError struct {
	Nombre string
	err    error
}

func (e *StockShortageError) Error() string {
	return "stock insuficiente para " + e.Nombre
}

func (e *StockShortageError) Unwrap() error { return e.err }

func isLockConflict(err error) bool {
	return errors.Is(err, database.ErrOptimisticLockFailed)
}

// withVersionRetry reruns fn while it keeps losing optimistic lock races.
func withVersionRetry(ctx context.Context, fn func() error) error {
	return database.Retry(ctx, maxLockRetries, fn, isLockConflict)
}
