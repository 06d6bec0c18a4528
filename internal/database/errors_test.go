package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", fmt.Errorf("wrapped: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"no documents", mongo.ErrNoDocuments, ErrorClassPermanent},
		{"canceled", context.Canceled, ErrorClassPermanent},
		{"transient txn", mongo.CommandError{Labels: []string{"TransientTransactionError"}}, ErrorClassTransient},
		{"other", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(ErrInsufficientStock))
}

func TestIsInvalidInput(t *testing.T) {
	assert.True(t, IsInvalidInput(&pq.Error{Code: "22P02"}))
	assert.False(t, IsInvalidInput(&pq.Error{Code: "23505"}))
	assert.False(t, IsInvalidInput(errors.New("boom")))
}

func TestStockError(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &StockError{ProductID: "p1", Requested: 3})

	assert.ErrorIs(t, err, ErrInsufficientStock)

	var se *StockError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "p1", se.ProductID)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	transient := &pq.Error{Code: "40001"}

	calls := 0
	err := Retry(ctx, 3, func() error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	}, IsRetryable)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 2, func() error {
		calls++
		return transient
	}, IsRetryable)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(ctx, 5, func() error {
		calls++
		return ErrOrderNotFound
	}, IsRetryable)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, 3, func() error {
		called = true
		return nil
	}, IsRetryable)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
