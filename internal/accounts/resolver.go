// Package accounts resolves account addresses to the account ids assigned by the
// chain importer.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/goran-ethernal/ContractIndexor/internal/common"
	"github.com/goran-ethernal/ContractIndexor/internal/logger"
	"github.com/goran-ethernal/ContractIndexor/internal/metrics"
	"github.com/goran-ethernal/ContractIndexor/internal/types"
	"github.com/goran-ethernal/ContractIndexor/pkg/config"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
)

// Cache tiers reported in lookup metrics.
const (
	tierMemory   = "memory"
	tierRedis    = "redis"
	tierDatabase = "database"
	tierMiss     = "miss"
)

const refillTimeout = 5 * time.Second

// Source is the authoritative address to id table.
type Source interface {
	AccountIDs(ctx context.Context, canonical []string) (map[string]int64, error)
}

// Resolver looks account ids up in an in-process map, then Redis, then the source.
// Bindings never change once created, so hits are cached without invalidation and
// misses are never cached.
type Resolver struct {
	source    Source
	local     *xsync.Map[string, int64]
	redis     *redis.Client
	keyPrefix string
	ttl       time.Duration
	refill    pond.Pool
	log       *logger.Logger
}

// NewResolver creates a Resolver. rdb may be nil, in which case only the in-process
// map caches bindings.
func NewResolver(source Source, rdb *redis.Client, cfg config.AccountsConfig, log *logger.Logger) *Resolver {
	keyPrefix := "contracts"
	if cfg.Redis != nil && cfg.Redis.KeyPrefix != "" {
		keyPrefix = cfg.Redis.KeyPrefix
	}

	workers := cfg.RefillWorkers
	if workers <= 0 {
		workers = 1
	}

	return &Resolver{
		source:    source,
		local:     xsync.NewMap[string, int64](),
		redis:     rdb,
		keyPrefix: keyPrefix,
		ttl:       cfg.CacheTTL.Duration,
		refill:    pond.NewPool(workers),
		log:       log.WithComponent(common.ComponentAccountResolver),
	}
}

// Resolve returns the ids of the known accounts among addrs. Unknown addresses are
// absent from the result.
func (r *Resolver) Resolve(ctx context.Context, addrs []types.AccountAddress) (map[types.AccountAddress]int64, error) {
	out := make(map[types.AccountAddress]int64, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	// aliases of one account share the canonical key
	byKey := make(map[string][]types.AccountAddress, len(addrs))
	pending := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		key := addr.CanonicalKey()
		if _, seen := byKey[key]; !seen {
			pending = append(pending, key)
		}
		byKey[key] = append(byKey[key], addr)
	}

	found := func(key string, id int64) {
		for _, addr := range byKey[key] {
			out[addr] = id
		}
	}

	pending = r.fromMemory(pending, found)
	pending = r.fromRedis(ctx, pending, found)

	if len(pending) > 0 {
		ids, err := r.source.AccountIDs(ctx, pending)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %d accounts: %w", len(pending), err)
		}

		metrics.AccountCacheLookupsAdd(tierDatabase, len(ids))
		metrics.AccountCacheLookupsAdd(tierMiss, len(pending)-len(ids))

		for key, id := range ids {
			r.local.Store(key, id)
			found(key, id)
		}
		r.scheduleRefill(ids)
	}

	return out, nil
}

// Close waits for outstanding cache refills.
func (r *Resolver) Close() {
	r.refill.StopAndWait()
}

func (r *Resolver) fromMemory(keys []string, found func(string, int64)) []string {
	missing := keys[:0:0]
	hits := 0
	for _, key := range keys {
		if id, ok := r.local.Load(key); ok {
			found(key, id)
			hits++
			continue
		}
		missing = append(missing, key)
	}
	metrics.AccountCacheLookupsAdd(tierMemory, hits)
	return missing
}

func (r *Resolver) fromRedis(ctx context.Context, keys []string, found func(string, int64)) []string {
	if r.redis == nil || len(keys) == 0 {
		return keys
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = r.redisKey(key)
	}

	values, err := r.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		// Redis is a cache; fall through to the source
		r.log.Warnw("redis lookup failed", "accounts", len(keys), "error", err)
		return keys
	}

	missing := keys[:0:0]
	hits := 0
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			missing = append(missing, keys[i])
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.log.Warnw("ignoring corrupt cached account id", "key", redisKeys[i], "value", raw)
			missing = append(missing, keys[i])
			continue
		}
		r.local.Store(keys[i], id)
		found(keys[i], id)
		hits++
	}
	metrics.AccountCacheLookupsAdd(tierRedis, hits)
	return missing
}

// scheduleRefill writes bindings loaded from the source back to Redis in the background.
func (r *Resolver) scheduleRefill(ids map[string]int64) {
	if r.redis == nil || len(ids) == 0 {
		return
	}

	r.refill.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), refillTimeout)
		defer cancel()

		_, err := r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, id := range ids {
				pipe.Set(ctx, r.redisKey(key), id, r.ttl)
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warnw("failed to refill account cache", "accounts", len(ids), "error", err)
		}
	})
}

func (r *Resolver) redisKey(canonical string) string {
	return r.keyPrefix + ":account:" + canonical
}
