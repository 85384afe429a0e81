// Package redis persists the registry into a single Redis hash, one field per
// bucket.
package redis

import (
	"caseledger/internal/infra/persistence/memory"
	"caseledger/pkg/domain"
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultKey names the hash that holds the registry state.
const DefaultKey = "caseledger:state"

// Config selects the Redis server and hash key.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Store wraps the in-memory store and writes every commit to Redis inside a
// MULTI/EXEC block.
type Store struct {
	*memory.Store
	client *goredis.Client
	key    string
}

// NewStore connects to Redis and hydrates the store from the configured hash.
func NewStore(ctx context.Context, cfg Config, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s, err := newStoreWithClient(ctx, client, cfg.Key, engine, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newStoreWithClient(ctx context.Context, client *goredis.Client, key string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	snapshot, err := memory.DecodeBuckets(fieldPayloads(fields))
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine, opts...)
	if err := mem.ImportState(snapshot); err != nil {
		return nil, fmt.Errorf("import redis state: %w", err)
	}
	s := &Store{Store: mem, client: client, key: key}
	mem.SetCommitHook(s.persist)
	return s, nil
}

func fieldPayloads(fields map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	payloads, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	values := make(map[string]any, len(payloads))
	for bucket, data := range payloads {
		values[bucket] = string(data)
	}
	if _, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.key, values)
		return nil
	}); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

// Key returns the hash key holding the state.
func (s *Store) Key() string { return s.key }

// Client exposes the Redis client for integration testing hooks.
func (s *Store) Client() *goredis.Client { return s.client }

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }
