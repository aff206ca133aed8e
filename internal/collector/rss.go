package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
)

const rssClientTimeout = 20 * time.Second

// RSSFetcher 抓取单个 RSS/Atom 源，条目的原始 *gofeed.Item 保留在 NewsItem.Raw 中
type RSSFetcher struct {
	url    string
	parser *gofeed.Parser
}

// NewRSSFetcher client 为空时使用带超时的默认客户端
func NewRSSFetcher(feedURL string, client *http.Client) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: rssClientTimeout}
	}
	p := gofeed.NewParser()
	p.UserAgent = UserAgent
	p.Client = client
	return &RSSFetcher{url: feedURL, parser: p}
}

// NewRSSFetchers 按配置顺序为每个源创建一个抓取器
func NewRSSFetchers(urls []string, client *http.Client) []Fetcher {
	out := make([]Fetcher, 0, len(urls))
	for _, u := range urls {
		out = append(out, NewRSSFetcher(u, client))
	}
	return out
}

func (f *RSSFetcher) Name() string {
	return f.url
}

func (f *RSSFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", f.url, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = f.url
	}

	items := make([]NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		published := it.PublishedParsed
		if published == nil {
			published = it.UpdatedParsed
		}
		items = append(items, Normalize(RawEntry{
			Title:       it.Title,
			Link:        it.Link,
			Summary:     it.Description,
			Description: it.Content,
			Published:   published,
			Native:      it,
		}, source))
	}

	log.Debug().Str("feed", f.url).Int("items", len(items)).Msg("rss fetched")
	return items, nil
}
