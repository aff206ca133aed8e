package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	cryptoPanicURL      = "https://cryptopanic.com/api/posts/"
	cryptoPanicLookback = 20
	cryptoPanicSource   = "CryptoPanic"
)

// OpinionsFetcher 从 CryptoPanic 拉取观点/分析类帖子（免费档只有标题与描述）
type OpinionsFetcher struct {
	BaseURL  string
	APIKey   string
	Lookback int
	Client   *http.Client
}

func NewOpinionsFetcher(apiKey string) *OpinionsFetcher {
	return &OpinionsFetcher{
		BaseURL:  cryptoPanicURL,
		APIKey:   apiKey,
		Lookback: cryptoPanicLookback,
		Client:   newAPIClient(),
	}
}

func (o *OpinionsFetcher) Name() string {
	return "cryptopanic"
}

type cryptoPanicPost struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Source      *struct {
		Title string `json:"title"`
	} `json:"source"`
}

type cryptoPanicResp struct {
	Results []cryptoPanicPost `json:"results"`
}

func (o *OpinionsFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	if o.APIKey == "" {
		log.Warn().Msg("CRYPTOPANIC_API_KEY not set, skipping opinions")
		return nil, nil
	}

	params := url.Values{}
	params.Set("auth_token", o.APIKey)
	params.Set("public", "true")

	var resp cryptoPanicResp
	if err := getJSON(ctx, o.Client, o.BaseURL, params, &resp); err != nil {
		return nil, fmt.Errorf("cryptopanic: %w", err)
	}

	posts := resp.Results
	if o.Lookback > 0 && len(posts) > o.Lookback {
		posts = posts[:o.Lookback]
	}

	items := make([]NewsItem, 0, len(posts))
	for _, p := range posts {
		source := cryptoPanicSource
		if p.Source != nil && strings.TrimSpace(p.Source.Title) != "" {
			source = strings.TrimSpace(p.Source.Title)
		}
		desc := p.Description
		if strings.TrimSpace(desc) == "" {
			desc = p.Title
		}
		items = append(items, Normalize(RawEntry{
			Title:     p.Title,
			Link:      opinionLink(p),
			Summary:   desc,
			Published: parseTime(p.PublishedAt),
		}, source))
	}
	return items, nil
}

// opinionLink 优先使用帖子 url，否则按 id 拼出帖子页面。
// source.url 是来源站点首页，多个帖子会共用，不能作为去重键。
func opinionLink(p cryptoPanicPost) string {
	if u := strings.TrimSpace(p.URL); u != "" {
		return u
	}
	if p.ID != 0 {
		return fmt.Sprintf("https://cryptopanic.com/news/%d", p.ID)
	}
	return ""
}

// parseTime 解析失败时返回 nil，由 Normalize 兜底为 Epoch
func parseTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}
