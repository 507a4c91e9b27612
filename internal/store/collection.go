package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/metrics"
)

// Record is an entity that can live in a collection.
type Record interface {
	RecordID() string
}

// Collection is a typed view over one backend collection.
//
// Put validates and canonically encodes a record before writing it. GetAll
// skips stored records that no longer decode or validate, logging each one,
// so a corrupt row never fails a whole scan.
type Collection[T Record] struct {
	name    string
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newCollection[T Record](name string, backend Backend, logger *slog.Logger, m *metrics.Metrics) *Collection[T] {
	return &Collection[T]{
		name:    name,
		backend: backend,
		logger:  logger.With("collection", name),
		metrics: m,
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Put upserts rec by its id and returns the stored record.
// Writing a record identical to the stored one changes nothing.
func (c *Collection[T]) Put(ctx context.Context, rec T) (T, error) {
	start := time.Now()
	raw, err := encodeRecord(c.name, rec)
	if err != nil {
		c.observe("put", err, start)
		c.logger.Warn("cache put rejected", "id", rec.RecordID(), "error", err)
		var zero T
		return zero, err
	}

	changed, err := c.backend.Put(ctx, c.name, raw)
	c.observe("put", err, start)
	if err != nil {
		c.logger.Warn("cache put failed", "id", raw.ID, "error", err)
		var zero T
		return zero, err
	}
	c.logger.Debug("cache put", "id", raw.ID, "changed", changed)
	return rec, nil
}

// GetAll returns every decodable record in the collection.
func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	start := time.Now()
	raws, err := c.backend.All(ctx, c.name)
	c.observe("get_all", err, start)
	if err != nil {
		c.logger.Warn("cache scan failed", "error", err)
		return nil, err
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeRecord[T](c.name, raw)
		if err != nil {
			c.logger.Warn("skipping corrupt cache record", "id", raw.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes the record with id. A missing id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := c.backend.Delete(ctx, c.name, id)
	c.observe("delete", err, start)
	if err != nil {
		c.logger.Warn("cache delete failed", "id", id, "error", err)
		return err
	}
	c.logger.Debug("cache delete", "id", id)
	return nil
}

func (c *Collection[T]) observe(op string, err error, start time.Time) {
	c.metrics.ObserveCacheOp(c.name, op, err, time.Since(start))
}

func encodeRecord(collection string, rec Record) (RawRecord, error) {
	if err := domain.Validate(rec); err != nil {
		return RawRecord{}, newCacheError(ErrCodeInvalidRecord, collection, "put", err)
	}
	payload, err := domain.MarshalCanonical(rec)
	if err != nil {
		return RawRecord{}, newCacheError(ErrCodeInvalidRecord, collection, "put", err)
	}
	return RawRecord{
		ID:      rec.RecordID(),
		Payload: payload,
		Digest:  domain.RecordDigest(collection, payload),
	}, nil
}

func decodeRecord[T Record](collection string, raw RawRecord) (T, error) {
	var rec T
	if err := json.Unmarshal(raw.Payload, &rec); err != nil {
		return rec, newCacheError(ErrCodeCorruptRecord, collection, "get_all", err)
	}
	if err := domain.Validate(rec); err != nil {
		return rec, newCacheError(ErrCodeCorruptRecord, collection, "get_all", err)
	}
	if rec.RecordID() != raw.ID {
		return rec, newCacheError(ErrCodeCorruptRecord, collection, "get_all",
			fmt.Errorf("payload id %q stored under %q", rec.RecordID(), raw.ID))
	}
	return rec, nil
}
