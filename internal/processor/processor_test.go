package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	name  string
	items []collector.NewsItem
	err   error
	calls int
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fetch(context.Context) ([]collector.NewsItem, error) {
	s.calls++
	return s.items, s.err
}

func at(hour, min int) time.Time {
	return time.Date(2024, 5, 1, hour, min, 0, 0, time.UTC)
}

func links(items []collector.NewsItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Link)
	}
	return out
}

func TestSimpleProcessorDeduplicateAndSort(t *testing.T) {
	p := NewSimpleProcessor()

	items := []collector.NewsItem{
		{Title: "old", Link: "https://example.com/1", PublishedAt: at(8, 0)},
		{Title: "no date", Link: "https://example.com/2", PublishedAt: collector.Epoch},
		{Title: "dup", Link: "https://example.com/1", PublishedAt: at(12, 0)},
		{Title: "new", Link: "https://example.com/3", PublishedAt: at(11, 0)},
		{Title: "no link", Link: "  "},
	}

	out := p.Process(items)
	require.Equal(t, []string{"https://example.com/3", "https://example.com/1", "https://example.com/2"}, links(out))
	// 重复链接保留第一次出现的那条
	require.Equal(t, "old", out[1].Title)
}

func TestSimpleProcessorTiesKeepSourceOrder(t *testing.T) {
	p := NewSimpleProcessor()
	out := p.Process([]collector.NewsItem{
		{Link: "a", Source: "A", PublishedAt: at(9, 0)},
		{Link: "b", Source: "B", PublishedAt: at(9, 0)},
		{Link: "c", Source: "C", PublishedAt: at(9, 0)},
	})
	require.Equal(t, []string{"a", "b", "c"}, links(out))
}

func TestFetchAllMergesFirstSeen(t *testing.T) {
	// 源 A: X(L1, 10:00), Y(L2, 09:00)；源 B: Y(L2, 09:30)
	feedA := &stubFetcher{name: "A", items: []collector.NewsItem{
		{Title: "X", Link: "L1", Source: "A", PublishedAt: at(10, 0)},
		{Title: "Y", Link: "L2", Source: "A", PublishedAt: at(9, 0)},
	}}
	feedB := &stubFetcher{name: "B", items: []collector.NewsItem{
		{Title: "Y", Link: "L2", Source: "B", PublishedAt: at(9, 30)},
	}}

	out := NewSimpleProcessor().FetchAll(context.Background(), []collector.Fetcher{feedA, feedB})
	require.Len(t, out, 2)
	require.Equal(t, "X", out[0].Title)
	require.Equal(t, "Y", out[1].Title)
	require.Equal(t, "A", out[1].Source)
	require.True(t, out[1].PublishedAt.Equal(at(9, 0)))
}

func TestFetchAllSkipsFailingSource(t *testing.T) {
	broken := &stubFetcher{name: "broken", err: errors.New("boom")}
	empty := &stubFetcher{name: "empty"}
	ok := &stubFetcher{name: "ok", items: []collector.NewsItem{{Link: "L", PublishedAt: at(1, 0)}}}

	out := NewSimpleProcessor().FetchAll(context.Background(), []collector.Fetcher{broken, empty, ok})
	require.Equal(t, []string{"L"}, links(out))
	require.Equal(t, 1, broken.calls)
	require.Equal(t, 1, ok.calls)
}

func TestProcessOutputIsUniqueAndSorted(t *testing.T) {
	var items []collector.NewsItem
	for i := 0; i < 200; i++ {
		items = append(items, collector.NewsItem{
			Link:        string(rune('a' + i%17)),
			PublishedAt: at(i%24, (i*7)%60),
		})
	}

	out := NewSimpleProcessor().Process(items)
	seen := map[string]bool{}
	for i, it := range out {
		require.False(t, seen[it.Link], "duplicate link %q", it.Link)
		seen[it.Link] = true
		if i > 0 {
			require.False(t, out[i-1].PublishedAt.Before(it.PublishedAt), "not sorted newest first at %d", i)
		}
	}
	require.Len(t, out, 17)
}
