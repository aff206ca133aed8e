package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisLinksKey = "cryptonews:posted_links"
	redisSeqKey   = "cryptonews:posted_links:seq"
)

// RedisRegistry 用有序集合保存链接，score 为单调递增序号；
// ZADD NX 保证多实例下同一链接只会被记录一次
type RedisRegistry struct {
	rdb *redis.Client
	max int
}

func NewRedisRegistry(addr string, max int) (*RedisRegistry, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return NewRedisRegistryWithClient(rdb, max), nil
}

func NewRedisRegistryWithClient(rdb *redis.Client, max int) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, max: capacity(max)}
}

func (r *RedisRegistry) IsPosted(ctx context.Context, link string) bool {
	link = normalizeLink(link)
	if link == "" {
		return false
	}
	err := r.rdb.ZScore(ctx, redisLinksKey, link).Err()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("link", link).Msg("redis lookup failed, treating as not posted")
		return false
	}
	return true
}

func (r *RedisRegistry) MarkPosted(ctx context.Context, link string) {
	link = normalizeLink(link)
	if link == "" {
		return
	}
	if err := r.add(ctx, link); err != nil {
		log.Error().Err(err).Str("link", link).Msg("could not save posted link")
	}
}

func (r *RedisRegistry) add(ctx context.Context, link string) error {
	if err := r.rdb.ZScore(ctx, redisLinksKey, link).Err(); err == nil {
		return nil
	}
	seq, err := r.rdb.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return err
	}
	added, err := r.rdb.ZAddNX(ctx, redisLinksKey, redis.Z{Score: float64(seq), Member: link}).Result()
	if err != nil || added == 0 {
		return err
	}
	// 只保留分数最高（最新）的 max 条
	return r.rdb.ZRemRangeByRank(ctx, redisLinksKey, 0, int64(-r.max-1)).Err()
}

func (r *RedisRegistry) Links(ctx context.Context) []string {
	links, err := r.rdb.ZRange(ctx, redisLinksKey, 0, -1).Result()
	if err != nil {
		log.Warn().Err(err).Msg("redis list failed")
		return nil
	}
	return links
}

func (r *RedisRegistry) Close() error {
	return r.rdb.Close()
}
