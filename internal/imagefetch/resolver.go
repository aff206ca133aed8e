package imagefetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
)

// Resolver 为一条新闻挑选配图，依次尝试：
// 源自带的媒体信息 -> 文章页 og:image（可关闭） -> 全局默认图。
// 只接受 https 地址；都没有时返回空串，由调用方改发纯文本。
type Resolver struct {
	Pages        PageFetcher
	FetchOG      bool
	DefaultImage string
}

func NewResolver(fetchOG bool, defaultImage string) *Resolver {
	return &Resolver{
		Pages:        NewCollyPageFetcher(),
		FetchOG:      fetchOG,
		DefaultImage: strings.TrimSpace(defaultImage),
	}
}

func (r *Resolver) Resolve(ctx context.Context, item collector.NewsItem) string {
	link := strings.TrimSpace(item.Link)

	if entry, ok := item.Raw.(*gofeed.Item); ok && entry != nil {
		if u := imageFromEntry(entry, link); u != "" {
			return u
		}
	}

	if r.FetchOG && r.Pages != nil && isHTTPS(link) {
		u, err := r.Pages.FetchOGImage(ctx, link)
		if err != nil {
			log.Debug().Err(err).Str("link", link).Msg("og:image fetch failed")
		} else if u = absoluteHTTPS(link, u); u != "" {
			return u
		}
	}

	if isHTTPS(r.DefaultImage) {
		return r.DefaultImage
	}
	return ""
}

// imageFromEntry media:content(图片) -> media:thumbnail -> 图片类 enclosure -> item.Image -> 正文里的第一个 <img>
func imageFromEntry(entry *gofeed.Item, link string) string {
	media := entry.Extensions["media"]

	for _, m := range media["content"] {
		kind := strings.ToLower(m.Attrs["type"] + " " + m.Attrs["medium"])
		if strings.Contains(kind, "image") && isHTTPS(m.Attrs["url"]) {
			return strings.TrimSpace(m.Attrs["url"])
		}
	}

	if thumbs := media["thumbnail"]; len(thumbs) > 0 {
		if u := thumbs[0].Attrs["url"]; isHTTPS(u) {
			return strings.TrimSpace(u)
		}
	}

	for _, enc := range entry.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") && isHTTPS(enc.URL) {
			return strings.TrimSpace(enc.URL)
		}
	}
	if entry.Image != nil && isHTTPS(entry.Image.URL) {
		return strings.TrimSpace(entry.Image.URL)
	}

	for _, markup := range []string{entry.Description, entry.Content} {
		if src, ok := firstImgSrc(markup); ok {
			return absoluteHTTPS(link, src)
		}
	}
	return ""
}

func firstImgSrc(markup string) (string, bool) {
	if !strings.Contains(strings.ToLower(markup), "<img") {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	src, ok := doc.Find("img[src]").First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", false
	}
	return strings.TrimSpace(src), true
}

// absoluteHTTPS 相对地址按 base 补全，结果必须是 https
func absoluteHTTPS(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if isHTTPS(ref) {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(r).String()
	if isHTTPS(abs) {
		return abs
	}
	return ""
}

func isHTTPS(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "https" && u.Host != ""
}
