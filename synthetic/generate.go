package synthetic

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"agrofin/finsync/appcontext"
	"agrofin/finsync/config"
	"agrofin/finsync/model"
	"agrofin/finsync/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SeedStats counts the documents written per collection.
type SeedStats struct {
	Ledger     int
	Categories int
	Accounts   int
}

// Seed inserts the reference documents and rows ledger entries. Reference documents that already
// exist are left untouched.
func Seed(ctx context.Context, provider storage.CollectionProvider, rows int, r *rand.Rand) (SeedStats, error) {
	logger := appcontext.LoggerFromContext(ctx)
	var stats SeedStats

	var err error
	if stats.Categories, err = insertAbsent(ctx, provider, model.Categories.Collection, Categories()); err != nil {
		return stats, err
	}
	if stats.Accounts, err = insertAbsent(ctx, provider, model.Accounts.Collection, Accounts()); err != nil {
		return stats, err
	}

	if rows > 0 {
		result, err := provider.Collection(model.Ledger.Collection).InsertMany(ctx, toDocuments(LedgerEntries(r, rows, time.Now())))
		if err != nil {
			return stats, fmt.Errorf("failed to insert ledger entries: %w", err)
		}
		stats.Ledger = len(result.InsertedIDs)
	}

	logger.InfoContext(ctx, "Seeded finance collections",
		"ledger", stats.Ledger, "categories", stats.Categories, "accounts", stats.Accounts)
	return stats, nil
}

func insertAbsent(ctx context.Context, provider storage.CollectionProvider, collection string, docs []bson.M) (int, error) {
	result, err := provider.Collection(collection).InsertMany(ctx, toDocuments(docs), options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return 0, fmt.Errorf("failed to insert %s: %w", collection, err)
	}
	if result == nil {
		return 0, nil
	}
	return len(result.InsertedIDs), nil
}

func toDocuments(docs []bson.M) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

// RunSeed parses the seed flags and writes synthetic documents to MongoDB.
func RunSeed(ctx context.Context, logger *slog.Logger, args []string, cfg *config.Config) error {
	seedFlagSet := flag.NewFlagSet("seed", flag.ContinueOnError)
	rows := seedFlagSet.Int("rows", cfg.SyntheticDataRows, "Number of ledger entries to generate")
	seed := seedFlagSet.Int64("seed", time.Now().UnixNano(), "Random seed")
	if err := seedFlagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *rows < 0 {
		return errors.New("rows must not be negative")
	}

	client, err := storage.ConnectToMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer storage.DisconnectOrLog(ctx, client)

	provider := storage.NewMongoProvider(client, cfg.MongoDatabase)
	if _, err := Seed(ctx, provider, *rows, rand.New(rand.NewSource(*seed))); err != nil {
		return fmt.Errorf("failed to seed synthetic data: %w", err)
	}
	logger.InfoContext(ctx, "Synthetic data generated and persisted successfully", "seed", *seed)
	return nil
}
