package services

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoDatabase = "pandemicwatch"

type MongoHistory struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoHistory(ctx context.Context, uri string) (*MongoHistory, error) {
	clientOptions := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	coll := client.Database(mongoDatabaseName(uri)).Collection(PredictionRecord{}.TableName())
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}})
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	return &MongoHistory{client: client, coll: coll}, nil
}

func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}

func (h *MongoHistory) Record(ctx context.Context, rec *PredictionRecord) error {
	_, err := h.coll.InsertOne(ctx, rec)
	return err
}

func (h *MongoHistory) Count(ctx context.Context) (int64, error) {
	return h.coll.CountDocuments(ctx, bson.D{})
}

func (h *MongoHistory) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := h.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	records := []PredictionRecord{}
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (h *MongoHistory) AverageLatency(ctx context.Context) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$latency_ms"}}},
		}}},
	}
	cur, err := h.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Avg float64 `bson:"avg"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Avg, nil
}

func (h *MongoHistory) Close(ctx context.Context) error {
	return h.client.Disconnect(ctx)
}
