package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// cmdable is the slice of the go-redis client the backend uses.
type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	HGet(context.Context, string, string) *redis.StringCmd
	HGetAll(context.Context, string) *redis.MapStringStringCmd
	HSet(context.Context, string, ...any) *redis.IntCmd
	HDel(context.Context, string, ...string) *redis.IntCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// RedisOptions configures a RedisBackend. URL wins over Addr when both are set.
type RedisOptions struct {
	Addr        string
	URL         string
	Password    string
	DB          int
	Namespace   string
	DialTimeout time.Duration
}

// DefaultRedisNamespace prefixes every key when RedisOptions.Namespace is empty.
const DefaultRedisNamespace = "shopsync"

// RedisBackend stores each collection as one hash keyed by record id.
// Hash values are a JSON envelope holding the digest and the canonical
// payload as a string, so the stored bytes round-trip exactly.
type RedisBackend struct {
	store     cmdable
	raw       *redis.Client
	namespace string
}

type redisEnvelope struct {
	Digest  string `json:"digest"`
	Payload string `json:"payload"`
}

// NewRedisBackend builds a client from opts. The connection is dialed on
// first use, not here.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	ro, err := redisClientOptions(opts)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(ro)
	return &RedisBackend{store: raw, raw: raw, namespace: namespaceOrDefault(opts.Namespace)}, nil
}

func redisClientOptions(opts RedisOptions) (*redis.Options, error) {
	if opts.URL == "" && opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}
	var ro *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}
	if ro.DB == 0 {
		ro.DB = opts.DB
	}
	if ro.DialTimeout == 0 {
		ro.DialTimeout = opts.DialTimeout
	}
	return ro, nil
}

func namespaceOrDefault(ns string) string {
	ns = strings.Trim(ns, ":")
	if ns == "" {
		return DefaultRedisNamespace
	}
	return ns
}

// Key returns the hash key holding a collection.
func (b *RedisBackend) Key(collection string) string {
	return b.namespace + ":cache:" + collection
}

// Put writes the record unless the stored digest already matches.
// HGET and HSET are separate round trips; a single writer per store is assumed.
func (b *RedisBackend) Put(ctx context.Context, collection string, rec RawRecord) (bool, error) {
	const op = "put"
	if !ValidCollection(collection) {
		return false, newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	key := b.Key(collection)

	existing, err := b.store.HGet(ctx, key, rec.ID).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// new record
	case err != nil:
		return false, newCacheError(ErrCodeUnavailable, collection, op, err)
	default:
		var env redisEnvelope
		if json.Unmarshal([]byte(existing), &env) == nil && env.Digest == rec.Digest {
			return false, nil
		}
	}

	value, err := json.Marshal(redisEnvelope{Digest: rec.Digest, Payload: string(rec.Payload)})
	if err != nil {
		return false, newCacheError(ErrCodeInvalidRecord, collection, op, err)
	}
	if err := b.store.HSet(ctx, key, rec.ID, string(value)).Err(); err != nil {
		return false, newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return true, nil
}

// All returns every record ordered by id. A value that is not a valid
// envelope is returned with its raw bytes as payload and no digest, so the
// caller's decode step reports it as corrupt.
func (b *RedisBackend) All(ctx context.Context, collection string) ([]RawRecord, error) {
	const op = "get_all"
	if !ValidCollection(collection) {
		return nil, newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	fields, err := b.store.HGetAll(ctx, b.Key(collection)).Result()
	if err != nil {
		return nil, newCacheError(ErrCodeUnavailable, collection, op, err)
	}

	out := make([]RawRecord, 0, len(fields))
	for id, value := range fields {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(value), &env); err != nil || len(env.Payload) == 0 {
			out = append(out, RawRecord{ID: id, Payload: []byte(value)})
			continue
		}
		out = append(out, RawRecord{ID: id, Payload: []byte(env.Payload), Digest: env.Digest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a record if present.
func (b *RedisBackend) Delete(ctx context.Context, collection, id string) error {
	const op = "delete"
	if !ValidCollection(collection) {
		return newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	if err := b.store.HDel(ctx, b.Key(collection), id).Err(); err != nil {
		return newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return nil
}

// Clear drops the collection hash.
func (b *RedisBackend) Clear(ctx context.Context, collection string) error {
	const op = "clear"
	if !ValidCollection(collection) {
		return newCacheError(ErrCodeUnknownCollection, collection, op, nil)
	}
	if err := b.store.Del(ctx, b.Key(collection)).Err(); err != nil {
		return newCacheError(ErrCodeTxFailed, collection, op, err)
	}
	return nil
}

// Ping checks the server responds.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.store.Ping(ctx).Err(); err != nil {
		return newCacheError(ErrCodeUnavailable, "", "ping", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (b *RedisBackend) Close() error {
	if b.raw == nil {
		return nil
	}
	return b.raw.Close()
}
