package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Cliente   string               `bson:"cliente"`
	Productos []lineDoc            `bson:"productos"`
	Total     money                `bson:"total"`
	Estado    string               `bson:"estado"`
	Reservado bool                 `bson:"reservado,omitempty"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
	Version   int                  `bson:"__v"`
}

type lineDoc struct {
	Producto primitive.ObjectID `bson:"producto"`
	Cantidad int                `bson:"cantidad"`
}

func (d *orderDoc) model() *models.Order {
	lines := make([]models.OrderLine, 0, len(d.Productos))
	for _, l := range d.Productos {
		lines = append(lines, models.OrderLine{Producto: l.Producto.Hex(), Cantidad: l.Cantidad})
	}

	// Documents written by earlier clients may carry legacy status names.
	estado, err := models.ParseStatus(d.Estado)
	if err != nil {
		estado = models.Status(d.Estado)
	}

	return &models.Order{
		ID:        d.ID.Hex(),
		Cliente:   d.Cliente,
		Productos: lines,
		Total:     decimal.Decimal(d.Total),
		Estado:    estado,
		Reservado: d.Reservado,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]models.Order, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["estado"] = string(f.Status)
	}
	if f.After != nil {
		oid, err := primitive.ObjectIDFromHex(f.After.ID)
		if err != nil {
			return nil, models.NewValidationError("cursor", "no es válido")
		}
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$lt": f.After.CreatedAt}},
			bson.M{"createdAt": f.After.CreatedAt, "_id": bson.M{"$lt": oid}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	orders := make([]models.Order, 0, len(docs))
	for i := range docs {
		orders = append(orders, *docs[i].model())
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrOrderNotFound
	}

	var doc orderDoc
	if err := s.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return doc.model(), nil
}

// CreateOrder takes the stock line by line with conditional updates and gives
// back what it already took when a later step fails.
func (s *Store) CreateOrder(ctx context.Context, o *models.Order, reserve []store.StockChange) error {
	lines, err := lineRefs(o.Productos)
	if err != nil {
		return err
	}

	ts := now()
	var taken []store.StockChange
	undo := func() {
		s.release(context.WithoutCancel(ctx), taken, ts)
	}

	for _, r := range reserve {
		oid, err := primitive.ObjectIDFromHex(r.ProductID)
		if err != nil {
			undo()
			return database.ErrProductNotFound
		}

		ok, err := s.incStock(ctx, oid, -r.Quantity, ts)
		if err != nil {
			undo()
			return err
		}
		if !ok {
			undo()
			found, err := exists(ctx, s.products, oid)
			if err != nil {
				return fmt.Errorf("failed to check product: %w", err)
			}
			if !found {
				return database.ErrProductNotFound
			}
			return &database.StockError{ProductID: r.ProductID, Requested: r.Quantity}
		}
		taken = append(taken, r)
	}

	doc := orderDoc{
		ID:        primitive.NewObjectID(),
		Cliente:   o.Cliente,
		Productos: lines,
		Total:     money(o.Total),
		Estado:    string(o.Estado),
		Reservado: len(reserve) > 0,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := s.orders.InsertOne(ctx, doc); err != nil {
		undo()
		return fmt.Errorf("failed to create order: %w", err)
	}

	o.ID = doc.ID.Hex()
	o.Reservado = doc.Reservado
	o.CreatedAt = ts
	o.UpdatedAt = ts
	o.Version = 0
	return nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *models.Order, release []store.StockChange) error {
	oid, err := primitive.ObjectIDFromHex(o.ID)
	if err != nil {
		return database.ErrOrderNotFound
	}
	lines, err := lineRefs(o.Productos)
	if err != nil {
		return err
	}
	total, err := toDecimal128(o.Total)
	if err != nil {
		return err
	}

	ts := now()
	filter := bson.M{"_id": oid, "__v": o.Version}
	update := bson.M{
		"$set": bson.M{
			"cliente":   o.Cliente,
			"productos": lines,
			"total":     total,
			"estado":    string(o.Estado),
			"reservado": o.Reservado,
			"updatedAt": ts,
		},
		"$inc": bson.M{"__v": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDoc
	err = s.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if !isNoDocuments(err) {
			return fmt.Errorf("failed to update order: %w", err)
		}
		found, err := exists(ctx, s.orders, oid)
		if err != nil {
			return fmt.Errorf("failed to check order: %w", err)
		}
		if !found {
			return database.ErrOrderNotFound
		}
		return database.ErrOptimisticLockFailed
	}

	*o = *doc.model()
	s.release(context.WithoutCancel(ctx), release, ts)
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return database.ErrOrderNotFound
	}

	result, err := s.orders.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	if result.DeletedCount == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// release gives stock back on a best-effort basis. Missing products and
// failed updates are skipped.
func (s *Store) release(ctx context.Context, changes []store.StockChange, ts time.Time) {
	for _, c := range changes {
		oid, err := primitive.ObjectIDFromHex(c.ProductID)
		if err != nil {
			continue
		}
		_, _ = s.incStock(ctx, oid, c.Quantity, ts)
	}
}
