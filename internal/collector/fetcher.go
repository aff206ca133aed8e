package collector

import (
	"context"
	"html"
	"regexp"
	"strings"
	"time"
)

const (
	summaryMaxRunes = 500
	defaultTitle    = "No title"
)

// Epoch 没有发布时间的条目统一使用该时间，排序时排在最后
var Epoch = time.Unix(0, 0).UTC()

// NewsItem 统一采集后的基础结构
type NewsItem struct {
	Title   string
	Link    string // 去重与幂等键，空链接永远不会被发布
	Summary string // 纯文本，最多 500 个字符
	Source  string
	// 排序键，缺失时为 Epoch
	PublishedAt time.Time
	// 原始条目（如 *gofeed.Item），只给图片解析使用，不落库
	Raw any
}

// HasLink 链接去掉空白后非空
func (n NewsItem) HasLink() bool {
	return strings.TrimSpace(n.Link) != ""
}

// RawEntry 各数据源先转换成该结构，再统一交给 Normalize
type RawEntry struct {
	Title       string
	Link        string
	Summary     string
	Description string // Summary 为空时使用
	Published   *time.Time
	Native      any
}

// Fetcher 抽象每一个条目型数据源（RSS、观点等）
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]NewsItem, error)
}

// Normalize 将原始条目整理成 NewsItem：标题兜底、去 HTML、摘要截断
func Normalize(raw RawEntry, source string) NewsItem {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = defaultTitle
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = strings.TrimSpace(raw.Description)
	}
	summary = truncateRunes(StripHTML(summary), summaryMaxRunes)

	published := Epoch
	if raw.Published != nil && !raw.Published.IsZero() {
		published = raw.Published.UTC()
	}

	return NewsItem{
		Title:       title,
		Link:        strings.TrimSpace(raw.Link),
		Summary:     summary,
		Source:      source,
		PublishedAt: published,
		Raw:         raw.Native,
	}
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML 去掉标签、解码实体并合并空白
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes 按 rune 截断，不追加省略号
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
