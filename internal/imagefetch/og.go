package imagefetch

import (
	"context"
	"net/http"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/gocolly/colly/v2"
)

const (
	ogTimeout     = 10 * time.Second
	ogMaxBodySize = 500000
)

// PageFetcher 抓取文章页面并取出 og:image
type PageFetcher interface {
	FetchOGImage(ctx context.Context, pageURL string) (string, error)
}

// CollyPageFetcher 基于 colly；页面正文超过 ogMaxBodySize 的部分直接丢弃
type CollyPageFetcher struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

func NewCollyPageFetcher() *CollyPageFetcher {
	return &CollyPageFetcher{Timeout: ogTimeout}
}

func (f *CollyPageFetcher) FetchOGImage(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := colly.NewCollector(
		colly.UserAgent(collector.UserAgent),
		colly.MaxBodySize(ogMaxBodySize),
	)
	if f.Transport != nil {
		c.WithTransport(f.Transport)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = ogTimeout
	}
	c.SetRequestTimeout(timeout)

	// property 写法优先，其次是部分站点使用的 name 写法
	var byProperty, byName string
	c.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		if byProperty == "" {
			byProperty = e.Request.AbsoluteURL(e.Attr("content"))
		}
	})
	c.OnHTML(`meta[name="og:image"]`, func(e *colly.HTMLElement) {
		if byName == "" {
			byName = e.Request.AbsoluteURL(e.Attr("content"))
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return "", err
	}
	if byProperty != "" {
		return byProperty, nil
	}
	return byName, nil
}
