package store

import (
	"context"
	"slices"
)

// Fixed logical collections. Names are interpolated into DDL and keys, so
// any other name is rejected.
const (
	CollectionProducts   = "products"
	CollectionCategories = "categories"
	CollectionCart       = "cart"
)

// Collections lists every collection a backend must provision.
var Collections = []string{CollectionProducts, CollectionCategories, CollectionCart}

// ValidCollection reports whether name is one of Collections.
func ValidCollection(name string) bool {
	return slices.Contains(Collections, name)
}

// RawRecord is an encoded entity as a backend stores it.
type RawRecord struct {
	ID      string
	Payload []byte // canonical JSON
	Digest  string
}

// Backend is durable key-value storage partitioned by collection.
//
// Each call is atomic for its single record and independent of every other
// call. A failed call returns a *CacheError and leaves the backend usable;
// the next call tries again.
type Backend interface {
	// Put upserts by id. It reports whether anything was written; an
	// identical digest is a no-op.
	Put(ctx context.Context, collection string, rec RawRecord) (changed bool, err error)

	// All returns every record in the collection, ordered by id.
	All(ctx context.Context, collection string) ([]RawRecord, error)

	// Delete removes a record. A missing id is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Clear removes every record in the collection.
	Clear(ctx context.Context, collection string) error

	// Ping opens the backend if needed and checks it responds.
	Ping(ctx context.Context) error

	Close() error
}
