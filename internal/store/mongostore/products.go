package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/safar/go-tienda/internal/database"
	"github.com/safar/go-tienda/internal/models"
	"github.com/safar/go-tienda/internal/store"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type productDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	Nombre    string               `bson:"nombre"`
	Precio    money                `bson:"precio"`
	Stock     int                  `bson:"stock"`
	Activo    bool                 `bson:"activo"`
	Imagen    string               `bson:"imagen,omitempty"`
	CreatedAt time.Time            `bson:"createdAt"`
	UpdatedAt time.Time            `bson:"updatedAt"`
	Version   int                  `bson:"__v"`
}

func (d *productDoc) model() *models.Product {
	return &models.Product{
		ID:        d.ID.Hex(),
		Nombre:    d.Nombre,
		Precio:    decimal.Decimal(d.Precio),
		Stock:     d.Stock,
		Activo:    d.Activo,
		Imagen:    d.Imagen,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Version:   d.Version,
	}
}

func productFilter(f store.ProductFilter) (bson.M, error) {
	filter := bson.M{}
	if f.Query != "" {
		filter["nombre"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Query), Options: "i"}
	}
	if f.Active != nil {
		filter["activo"] = *f.Active
	}

	price := bson.M{}
	if f.MinPrice != nil {
		v, err := toDecimal128(*f.MinPrice)
		if err != nil {
			return nil, err
		}
		price["$gte"] = v
	}
	if f.MaxPrice != nil {
		v, err := toDecimal128(*f.MaxPrice)
		if err != nil {
			return nil, err
		}
		price["$lte"] = v
	}
	if len(price) > 0 {
		filter["precio"] = price
	}

	return filter, nil
}

func productSort(s store.Sort) bson.D {
	dir := 1
	if s.Desc {
		dir = -1
	}

	field := s.FieldOrDefault()
	sort := bson.D{{Key: field, Value: dir}}
	if field != store.SortByCreatedAt {
		sort = append(sort, bson.E{Key: "createdAt", Value: 1})
	}
	return append(sort, bson.E{Key: "_id", Value: 1})
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int64, error) {
	filter, err := productFilter(f)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.products.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	opts := options.Find().SetSort(productSort(f.Sort))
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode products: %w", err)
	}

	products := make([]models.Product, 0, len(docs))
	for i := range docs {
		products = append(products, *docs[i].model())
	}
	return products, total, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrProductNotFound
	}

	var doc productDoc
	if err := s.products.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return doc.model(), nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return out, nil
	}

	cur, err := s.products.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	for i := range docs {
		p := docs[i].model()
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	doc := productDoc{
		ID:        primitive.NewObjectID(),
		Nombre:    p.Nombre,
		Precio:    money(p.Precio),
		Stock:     p.Stock,
		Activo:    p.Activo,
		Imagen:    p.Imagen,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	p.ID = doc.ID.Hex()
	p.CreatedAt = ts
	p.UpdatedAt = ts
	p.Version = 0
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	oid, err := primitive.ObjectIDFromHex(p.ID)
	if err != nil {
		return database.ErrProductNotFound
	}

	precio, err := toDecimal128(p.Precio)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": oid, "__v": p.Version}
	update := bson.M{
		"$set": bson.M{
			"nombre":    p.Nombre,
			"precio":    precio,
			"stock":     p.Stock,
			"activo":    p.Activo,
			"imagen":    p.Imagen,
			"updatedAt": now(),
		},
		"$inc": bson.M{"__v": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDoc
	err = s.products.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		*p = *doc.model()
		return nil
	}
	if !isNoDocuments(err) {
		return fmt.Errorf("failed to update product: %w", err)
	}

	found, err := exists(ctx, s.products, oid)
	if err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if !found {
		return database.ErrProductNotFound
	}
	return database.ErrOptimisticLockFailed
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return database.ErrProductNotFound
	}

	result, err := s.products.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	if result.DeletedCount == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// incStock adds delta to the stock of id. A negative delta only applies while
// enough stock remains; the result reports whether a document matched.
func (s *Store) incStock(ctx context.Context, id primitive.ObjectID, delta int, ts time.Time) (bool, error) {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["stock"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"stock": delta, "__v": 1},
		"$set": bson.M{"updatedAt": ts},
	}

	result, err := s.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update stock: %w", err)
	}
	return result.MatchedCount > 0, nil
}
