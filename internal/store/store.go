package store

import (
	"context"
	"log/slog"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/metrics"
)

// Cache is the durable per-entity cache: one typed collection per domain
// over a shared backend.
type Cache struct {
	backend    Backend
	logger     *slog.Logger
	products   *Collection[domain.Product]
	categories *Collection[domain.Category]
	cart       *Collection[domain.CartLineItem]
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *cacheOptions) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *cacheOptions) {
		o.metrics = m
	}
}

// New wraps backend in typed collections.
func New(backend Backend, opts ...Option) *Cache {
	o := cacheOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "cache")
	return &Cache{
		backend:    backend,
		logger:     logger,
		products:   newCollection[domain.Product](CollectionProducts, backend, logger, o.metrics),
		categories: newCollection[domain.Category](CollectionCategories, backend, logger, o.metrics),
		cart:       newCollection[domain.CartLineItem](CollectionCart, backend, logger, o.metrics),
	}
}

// OpenSQLite returns a cache over a lazily opened SQLite database.
func OpenSQLite(path string, opts ...Option) *Cache {
	return New(NewSQLiteBackend(path), opts...)
}

// Products is the catalog collection.
func (c *Cache) Products() *Collection[domain.Product] {
	return c.products
}

// Categories is the category collection.
func (c *Cache) Categories() *Collection[domain.Category] {
	return c.categories
}

// Cart is the cart line collection.
func (c *Cache) Cart() *Collection[domain.CartLineItem] {
	return c.cart
}

// Raw returns the stored records of a collection without decoding them.
func (c *Cache) Raw(ctx context.Context, collection string) ([]RawRecord, error) {
	return c.backend.All(ctx, collection)
}

// Clear removes every record in a collection.
func (c *Cache) Clear(ctx context.Context, collection string) error {
	if err := c.backend.Clear(ctx, collection); err != nil {
		c.logger.Warn("cache clear failed", "collection", collection, "error", err)
		return err
	}
	c.logger.Info("cache cleared", "collection", collection)
	return nil
}

// Ping opens the backend if needed and checks it responds.
func (c *Cache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
