package syncer

import (
	"context"
	"errors"
	"fmt"

	"agrofin/finsync/config"
	"agrofin/finsync/relational"
	"agrofin/finsync/storage"
)

// NewOpener returns an Opener that connects to MongoDB and the relational store named in cfg.
func NewOpener(cfg *config.Config) Opener {
	return func(ctx context.Context) (*Stores, error) {
		mongoClient, err := storage.ConnectToMongoDB(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connection to MongoDB failed: %w", err)
		}

		engine, err := relational.Open(ctx, cfg.SQLDriver, cfg.SQLDSN)
		if err != nil {
			storage.DisconnectOrLog(ctx, mongoClient)
			return nil, fmt.Errorf("connection to relational store failed: %w", err)
		}

		return &Stores{
			Source: storage.NewFinanceReader(storage.NewMongoProvider(mongoClient, cfg.MongoDatabase)),
			Target: engine,
			Close: func(ctx context.Context) error {
				return errors.Join(engine.Close(), mongoClient.Disconnect(ctx))
			},
		}, nil
	}
}
