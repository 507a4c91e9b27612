package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/roach88/shopsync/internal/domain"
)

// createTestCache creates a cache over a fresh SQLite file.
func createTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c := OpenSQLite(path, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProduct(id string, price string) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Quantity: 5,
		Category: "c1",
	}
}

func productIDs(ps []domain.Product) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}
