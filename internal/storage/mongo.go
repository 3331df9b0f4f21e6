package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder writes results and edges into two collections.
type MongoRecorder struct {
	Client  *mongo.Client
	Results *mongo.Collection
	Edges   *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*MongoRecorder, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(database)
	return &MongoRecorder{
		Client:  client,
		Results: db.Collection("results"),
		Edges:   db.Collection("edges"),
	}, nil
}

func (s *MongoRecorder) RecordResult(ctx context.Context, r Result) error {
	if _, err := s.Results.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("mongodb insert result: %w", err)
	}
	return nil
}

func (s *MongoRecorder) RecordEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	docs := make([]any, len(edges))
	for i, e := range edges {
		docs[i] = e
	}
	if _, err := s.Edges.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongodb insert edges: %w", err)
	}
	return nil
}

func (s *MongoRecorder) Close() error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Disconnect(context.Background())
}
