package store

import (
	"context"

	"github.com/yourorg/catalog-sync/internal/catalog"
)

// ProductStore exposes the product table as a single-kind record store.
type ProductStore struct{ *Store }

func (p ProductStore) Find(ctx context.Context, key string) (catalog.Record, bool, error) {
	return p.ProductBySKU(ctx, key)
}

func (p ProductStore) Upsert(ctx context.Context, records []catalog.Record) error {
	return p.UpsertProducts(ctx, records)
}

func (p ProductStore) Delete(ctx context.Context, key string) error {
	return p.DeleteProductBySKU(ctx, key)
}

// ServiceStore exposes the service table as a single-kind record store.
type ServiceStore struct{ *Store }

func (s ServiceStore) Find(ctx context.Context, key string) (catalog.Record, bool, error) {
	return s.ServiceByID(ctx, key)
}

func (s ServiceStore) Upsert(ctx context.Context, records []catalog.Record) error {
	return s.UpsertServices(ctx, records)
}

func (s ServiceStore) Delete(ctx context.Context, key string) error {
	return s.DeleteServiceByID(ctx, key)
}
