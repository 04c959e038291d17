// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"

	"github.com/xcherryio/creditbridge/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRecorder struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoRecorder(ctx context.Context, cfg config.MongoConfig) (Recorder, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "taskId", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create taskId index: %w", err)
	}
	return &mongoRecorder{client: client, coll: coll}, nil
}

func (m *mongoRecorder) Record(ctx context.Context, record Record) error {
	_, err := m.coll.InsertOne(ctx, record)
	return err
}

func (m *mongoRecorder) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
