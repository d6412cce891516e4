package storage

import (
	"context"
	"fmt"

	"agrofin/finsync/model"
	"agrofin/finsync/normalize"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FinanceReader reads the finance collections. It never writes.
type FinanceReader struct {
	provider CollectionProvider
}

// NewFinanceReader creates a new FinanceReader.
func NewFinanceReader(provider CollectionProvider) *FinanceReader {
	return &FinanceReader{provider: provider}
}

// LedgerEntries returns every ledger document not flagged isIgnored.
func (r *FinanceReader) LedgerEntries(ctx context.Context) ([]bson.M, error) {
	filter := bson.M{normalize.IgnoredField: bson.M{"$ne": true}}
	return r.findAll(ctx, model.Ledger.Collection, filter)
}

// Categories returns every category document.
func (r *FinanceReader) Categories(ctx context.Context) ([]bson.M, error) {
	return r.findAll(ctx, model.Categories.Collection, bson.M{})
}

// Accounts returns every account document.
func (r *FinanceReader) Accounts(ctx context.Context) ([]bson.M, error) {
	return r.findAll(ctx, model.Accounts.Collection, bson.M{})
}

func (r *FinanceReader) findAll(ctx context.Context, collection string, filter bson.M) ([]bson.M, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	docs, err := r.provider.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	return docs, nil
}
