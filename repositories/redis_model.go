package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"doc-classifier/contract"
	"doc-classifier/domain"
	"doc-classifier/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ contract.ModelStore = (*RedisModelStore)(nil)

// RedisModelStore indexes envelopes of each model name in a sorted set
// scored by storage time; each envelope lives under its own string key.
type RedisModelStore struct {
	client *redis.Client
	log    *slog.Logger
	prefix string
}

// NewRedisModelStore connects to url and checks the connection.
func NewRedisModelStore(ctx context.Context, url, prefix string, log *slog.Logger) (*RedisModelStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisModelStore{client: client, log: log, prefix: prefix}, nil
}

func (s *RedisModelStore) Close() error {
	return s.client.Close()
}

func (s *RedisModelStore) indexKey(name string) string {
	return s.prefix + "models:" + name
}

func (s *RedisModelStore) dataKey(key string) string {
	return s.prefix + key
}

func (s *RedisModelStore) Put(ctx context.Context, name string, data []byte) (domain.ModelEntry, error) {
	at := time.Now().UTC()
	key := fmt.Sprintf("model:%s:%019d:%s", name, at.UnixNano(), uuid.New())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(key), data, 0)
	pipe.ZAdd(ctx, s.indexKey(name), redis.Z{Score: float64(at.UnixNano()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ModelEntry{}, fmt.Errorf("store model %s: %w", name, err)
	}
	s.log.Debug("Model stored", "key", key, "size", len(data))
	return domain.ModelEntry{Key: key, Name: name, StoredAt: at, Size: len(data)}, nil
}

func (s *RedisModelStore) Latest(ctx context.Context, name string) ([]byte, error) {
	keys, err := s.client.ZRevRange(ctx, s.indexKey(name), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("latest model %s: %w", name, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrModelNotFound, name)
	}
	data, err := s.client.Get(ctx, s.dataKey(keys[0])).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", errors.ErrModelNotFound, keys[0])
	}
	return data, err
}

func (s *RedisModelStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", errors.ErrModelNotFound, key)
	}
	return data, err
}

func (s *RedisModelStore) List(ctx context.Context, name string) ([]domain.ModelEntry, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.indexKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list models %s: %w", name, err)
	}
	pipe := s.client.Pipeline()
	sizes := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		sizes[i] = pipe.StrLen(ctx, s.dataKey(fmt.Sprint(m.Member)))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("list models %s: %w", name, err)
		}
	}
	entries := make([]domain.ModelEntry, len(members))
	for i, m := range members {
		entries[i] = indexedEntry(name, m, int(sizes[i].Val()))
	}
	return entries, nil
}

// indexedEntry rebuilds an entry from its sorted set member. The key carries
// the exact storage time; the float64 score only orders the set.
func indexedEntry(name string, m redis.Z, size int) domain.ModelEntry {
	key := fmt.Sprint(m.Member)
	entry, err := parseModelKey(key)
	if err != nil {
		entry = domain.ModelEntry{Key: key, StoredAt: time.Unix(0, int64(m.Score)).UTC()}
	}
	entry.Name = name
	entry.Size = size
	return entry
}
