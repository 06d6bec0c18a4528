// Package mongostore stores products and orders in the productos and pedidos
// collections of a MongoDB database.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	db       *mongo.Database
	products *mongo.Collection
	orders   *mongo.Collection
}

var _ store.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		products: db.Collection("productos"),
		orders:   db.Collection("pedidos"),
	}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "nombre", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}

	_, err = s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "estado", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// now matches the millisecond precision BSON dates are stored with.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(d primitive.Decimal128) decimal.Decimal {
	v, err := decimal.NewFromString(d.String())
	if err != nil {
		return decimal.Zero
	}
	return v
}

// money is written as Decimal128 and read back from any BSON number, so
// documents that stored prices as doubles still load.
type money decimal.Decimal

func (m money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := toDecimal128(decimal.Decimal(m))
	if err != nil {
		return 0, nil, err
	}
	return bson.MarshalValue(d)
}

func (m *money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	v := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		*m = money(fromDecimal128(v.Decimal128()))
	case bsontype.Double:
		*m = money(decimal.NewFromFloat(v.Double()))
	case bsontype.Int32:
		*m = money(decimal.NewFromInt(int64(v.Int32())))
	case bsontype.Int64:
		*m = money(decimal.NewFromInt(v.Int64()))
	case bsontype.Null, bsontype.Undefined:
		*m = money(decimal.Zero)
	default:
		return fmt.Errorf("cannot decode %s into an amount", t)
	}
	return nil
}

func exists(ctx context.Context, c *mongo.Collection, id primitive.ObjectID) (bool, error) {
	n, err := c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func lineRefs(lines []models.OrderLine) ([]lineDoc, error) {
	out := make([]lineDoc, 0, len(lines))
	for _, l := range lines {
		oid, err := primitive.ObjectIDFromHex(l.Producto)
		if err != nil {
			return nil, models.NewValidationError("productos", fmt.Sprintf("referencia de producto no válida %q", l.Producto))
		}
		out = append(out, lineDoc{Producto: oid, Cantidad: l.Cantidad})
	}
	return out, nil
}
