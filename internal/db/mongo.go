package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book_spider/internal/config"
	"book_spider/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	books    *mongo.Collection
}

// ShopStats summarises what is stored for one shop.
type ShopStats struct {
	Books         int `bson:"books"`
	MissingImages int `bson:"missing_images"`
	Publishers    int `bson:"publishers"`
}

func NewMongoDB(config config.DBConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	d := &MongoDB{
		client:   client,
		database: db,
		books:    db.Collection(config.Collections.Books),
	}

	if err := d.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("can't create indices: %w", err)
	}
	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) error {
	_, err := d.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shop", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "shop", Value: 1}, {Key: "publisher", Value: 1}},
		},
	})
	return err
}

// bookDocument is the stored form of rec: its fields plus the lookup key and
// the time of the last scrape.
func bookDocument(rec *models.BookRecord, now time.Time) (bson.M, error) {
	data, err := bson.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	delete(doc, "scraped_count")
	doc["key"] = rec.Key()
	doc["last_scraped"] = now.Unix()
	return doc, nil
}

// Append upserts every record by (shop, key); a book scraped again keeps one
// document and its scraped_count grows.
func (d *MongoDB) Append(records []*models.BookRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc, err := bookDocument(rec, now)
		if err != nil {
			return fmt.Errorf("encode book %s: %w", rec.Key(), err)
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"shop": rec.Shop, "key": doc["key"]}).
			SetUpdate(bson.M{"$set": doc, "$inc": bson.M{"scraped_count": 1}}).
			SetUpsert(true))
	}

	_, err := d.books.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

func (d *MongoDB) GetBook(shop, key string) (*models.BookRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rec models.BookRecord
	err := d.books.FindOne(ctx, bson.M{"shop": shop, "key": key}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return &rec, err
}

func (d *MongoDB) GetShopStats(shop string) (ShopStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "shop", Value: shop}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "books", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "missing_images", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{"$missing_image", 1, 0}}}}}},
			{Key: "publishers", Value: bson.D{{Key: "$addToSet", Value: "$publisher"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "books", Value: 1},
			{Key: "missing_images", Value: 1},
			{Key: "publishers", Value: bson.D{{Key: "$size", Value: "$publishers"}}},
		}}},
	}

	cursor, err := d.books.Aggregate(ctx, pipeline)
	if err != nil {
		return ShopStats{}, err
	}
	defer cursor.Close(ctx)

	var results []ShopStats
	if err := cursor.All(ctx, &results); err != nil {
		return ShopStats{}, err
	}
	if len(results) == 0 {
		return ShopStats{}, nil
	}
	return results[0], nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}
