package processor

import (
	"context"
	"slices"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/rs/zerolog/log"
)

// SimpleProcessor 做多源合并：按链接去重（先到先得），再按发布时间倒序
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

// Process 丢弃空链接条目，同一链接只保留第一次出现的那条；
// 排序是稳定的，发布时间相同时保持原顺序（即靠前的源优先）
func (p *SimpleProcessor) Process(items []collector.NewsItem) []collector.NewsItem {
	out := make([]collector.NewsItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		if !it.HasLink() {
			log.Debug().Str("title", it.Title).Str("source", it.Source).Msg("drop item without link")
			continue
		}
		if _, ok := seen[it.Link]; ok {
			continue
		}
		seen[it.Link] = struct{}{}
		out = append(out, it)
	}

	slices.SortStableFunc(out, func(a, b collector.NewsItem) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return out
}

// FetchAll 按顺序逐个抓取，单个源失败只记录日志并跳过
func (p *SimpleProcessor) FetchAll(ctx context.Context, fetchers []collector.Fetcher) []collector.NewsItem {
	var all []collector.NewsItem
	for _, f := range fetchers {
		name := f.Name()
		items, err := f.Fetch(ctx)
		if err != nil {
			log.Error().Err(err).Str("feed", name).Msg("fetch failed")
			continue
		}
		if len(items) == 0 {
			log.Warn().Str("feed", name).Msg("fetch got 0 items")
			continue
		}
		all = append(all, items...)
	}

	out := p.Process(all)
	log.Info().Int("fetched", len(all)).Int("unique", len(out)).Msg("feeds merged")
	return out
}
