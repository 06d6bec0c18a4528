package database

import (
	"context"
	"testing"
	"time"

	"github.com/safar/go-tienda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresRejectsMalformedURL(t *testing.T) {
	db, err := NewPostgres(context.Background(), &config.DatabaseConfig{
		URL:            "postgres://tienda@localhost:notaport/tienda",
		ConnectTimeout: time.Second,
	})
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "parse database url")
}
