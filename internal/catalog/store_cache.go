package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	productsCacheKey = "catalog:products"
	redisDialTimeout = 5 * time.Second
)

// ListCache holds the full product listing, the only read the storefront
// makes. Every Invalidate bumps a generation; Set stores a listing only while
// the generation it was read under is still current, so a slow read cannot
// put back data a write has already replaced.
type ListCache interface {
	Get(ctx context.Context) (products []Product, gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, products []Product) error
	Invalidate(ctx context.Context) error
}

type RedisListCache struct {
	rdb    *redis.Client
	key    string
	genKey string
	ttl    time.Duration
}

func NewRedisListCache(rdb *redis.Client, ttl time.Duration) *RedisListCache {
	return &RedisListCache{rdb: rdb, key: productsCacheKey, genKey: productsCacheKey + ":gen", ttl: ttl}
}

// OpenRedis connects and pings so a bad address fails at start-up.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *RedisListCache) Get(ctx context.Context) ([]Product, int64, bool, error) {
	vals, err := c.rdb.MGet(ctx, c.key, c.genKey).Result()
	if err != nil {
		return nil, 0, false, err
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}

	var out []Product
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, gen, false, fmt.Errorf("decode cached products: %w", err)
	}
	return out, gen, true, nil
}

func (c *RedisListCache) Set(ctx context.Context, gen int64, products []Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, c.genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		now, err := parseGen(cur)
		if err != nil {
			return err
		}
		if now != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, raw, c.ttl)
			return nil
		})
		return err
	}, c.genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// a write bumped the generation mid-fill
		return nil
	}
	return err
}

func (c *RedisListCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	return err
}

func parseGen(v any) (int64, error) {
	switch v := v.(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		gen, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode cache generation: %w", err)
		}
		return gen, nil
	default:
		return 0, fmt.Errorf("decode cache generation: unexpected %T", v)
	}
}

// CachedStore serves ListProducts from a ListCache and drops the cached
// listing after every successful write. Cache failures only cost a trip to
// the underlying store.
type CachedStore struct {
	Store
	cache ListCache
	log   *zap.Logger
}

func NewCachedStore(store Store, cache ListCache, log *zap.Logger) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{Store: store, cache: cache, log: log}
}

func (s *CachedStore) ListProducts(ctx context.Context) ([]Product, error) {
	cached, gen, ok, err := s.cache.Get(ctx)
	// without a generation there is nothing safe to fill against
	fill := err == nil
	if err != nil {
		s.log.Warn("product cache read failed", zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	products, err := s.Store.ListProducts(ctx)
	if err != nil || !fill {
		return products, err
	}
	if err := s.cache.Set(ctx, gen, products); err != nil {
		s.log.Warn("product cache fill failed", zap.Error(err))
	}
	return products, nil
}

func (s *CachedStore) CreateProduct(ctx context.Context, in NewProduct) (Product, error) {
	p, err := s.Store.CreateProduct(ctx, in)
	s.invalidate(ctx, err)
	return p, err
}

func (s *CachedStore) UpdateProduct(ctx context.Context, id string, in ProductFields) (Product, error) {
	p, err := s.Store.UpdateProduct(ctx, id, in)
	s.invalidate(ctx, err)
	return p, err
}

func (s *CachedStore) DeleteProduct(ctx context.Context, id string) error {
	err := s.Store.DeleteProduct(ctx, id)
	s.invalidate(ctx, err)
	return err
}

func (s *CachedStore) AddFlavor(ctx context.Context, productID string, in FlavorFields) (Flavor, error) {
	f, err := s.Store.AddFlavor(ctx, productID, in)
	s.invalidate(ctx, err)
	return f, err
}

func (s *CachedStore) UpdateFlavor(ctx context.Context, id string, in FlavorFields) (Flavor, error) {
	f, err := s.Store.UpdateFlavor(ctx, id, in)
	s.invalidate(ctx, err)
	return f, err
}

func (s *CachedStore) DeleteFlavor(ctx context.Context, id string) error {
	err := s.Store.DeleteFlavor(ctx, id)
	s.invalidate(ctx, err)
	return err
}

func (s *CachedStore) invalidate(ctx context.Context, writeErr error) {
	if writeErr != nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("product cache invalidate failed", zap.Error(err))
	}
}
