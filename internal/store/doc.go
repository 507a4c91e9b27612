// Package store provides the durable per-entity cache.
//
// The cache holds three fixed collections, products, categories and cart,
// each keyed by entity id. It supports upsert, delete and full scan; nothing
// is atomic across calls.
//
// # Records
//
// Entities are validated, then encoded as RFC 8785 canonical JSON, and
// stored with a domain-separated SHA-256 digest (internal/domain/hash.go).
// An upsert whose digest matches the stored row writes nothing.
//
// # Backends
//
//   - SQLiteBackend: one table per collection, opened lazily, WAL mode.
//     Schema version is tracked with PRAGMA user_version.
//   - RedisBackend: one hash per collection under <namespace>:cache:<name>.
//
// # Failure Model
//
// Every failure is a *CacheError. A failed open or transaction fails only
// that call; the next call retries the open. Callers treat IsUnavailable
// errors as "cache unavailable" and carry on with in-memory data.
package store
