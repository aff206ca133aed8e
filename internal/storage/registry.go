package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LJTian/CryptoNewsBot/internal/config"
	"github.com/rs/zerolog/log"
)

// DefaultMaxLinks 已发布链接的默认保留上限
const DefaultMaxLinks = 500

var ErrUnknownBackend = errors.New("storage: unknown backend")

// Registry 记录已经发布过的链接，是发布前唯一的去重依据。
// 读失败按“未发布”处理，写失败只记日志，都不会向上抛错。
type Registry interface {
	IsPosted(ctx context.Context, link string) bool
	MarkPosted(ctx context.Context, link string)
	// Links 按发布先后返回当前保留的链接（最旧在前）
	Links(ctx context.Context) []string
	Close() error
}

func normalizeLink(link string) string {
	return strings.TrimSpace(link)
}

func capacity(n int) int {
	if n <= 0 {
		return DefaultMaxLinks
	}
	return n
}

// Open 按配置选择后端；postgres 后端同时返回 RunStore 用于保存运行记录，其余后端 RunStore 为 nil
func Open(cfg *config.Config) (Registry, RunStore, error) {
	max := capacity(cfg.MaxPostedLinks)

	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "file":
		return NewFileRegistry(cfg.PostedLinksFile, max), nil, nil
	case "sqlite":
		r, err := NewSQLiteRegistry(cfg.SQLitePath, max)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite registry: %w", err)
		}
		return r, nil, nil
	case "redis":
		r, err := NewRedisRegistry(cfg.RedisAddr, max)
		if err != nil {
			return nil, nil, fmt.Errorf("redis registry: %w", err)
		}
		return r, nil, nil
	case "postgres":
		s, err := NewStore(cfg.PostgresDSN, max)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres registry: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
}

// OpenOrFallback 后端不可用时退回文件存储，保证进程能继续运行
func OpenOrFallback(cfg *config.Config) (Registry, RunStore) {
	reg, runs, err := Open(cfg)
	if err == nil {
		log.Info().Str("backend", cfg.StoreBackend).Int("max_links", capacity(cfg.MaxPostedLinks)).Msg("posted-link registry ready")
		return reg, runs
	}
	log.Error().Err(err).Str("file", cfg.PostedLinksFile).Msg("registry backend unavailable, falling back to file")
	return NewFileRegistry(cfg.PostedLinksFile, capacity(cfg.MaxPostedLinks)), nil
}
