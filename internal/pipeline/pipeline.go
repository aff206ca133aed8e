package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/LJTian/CryptoNewsBot/internal/processor"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	PhaseMarket   = "market"
	PhaseAlerts   = "alerts"
	PhaseOpinions = "opinions"
	PhaseNews     = "news"
)

type MarketSource interface {
	Snapshot(ctx context.Context) (text, imageURL string, err error)
}

type AlertSource interface {
	Alerts(ctx context.Context) (string, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, title, summary, source string) (string, bool)
}

type ImageResolver interface {
	Resolve(ctx context.Context, item collector.NewsItem) string
}

type Publisher interface {
	Publish(ctx context.Context, caption, imageURL string) bool
}

// PostedLinks 去重存储里编排器用到的部分
type PostedLinks interface {
	IsPosted(ctx context.Context, link string) bool
	MarkPosted(ctx context.Context, link string)
}

// Orchestrator 一次运行依次执行 行情 -> 巨鲸 -> 观点 -> 新闻 四个阶段；
// 任何阶段失败都不影响后续阶段，单条内容失败也不影响同阶段的其他内容。
// Market / Alerts / Opinions 为 nil 时对应阶段关闭。
type Orchestrator struct {
	Market   MarketSource
	Alerts   AlertSource
	Opinions collector.Fetcher
	Feeds    []collector.Fetcher
	Merger   *processor.SimpleProcessor

	Rewriter  Rewriter
	Images    ImageResolver
	Publisher Publisher
	Registry  PostedLinks

	MaxPosts    int
	MaxOpinions int
}

// PhaseResult 单个阶段的计数。Attempted 为进入改写/发布流程的条数
type PhaseResult struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Fetched   int    `json:"fetched"`
	Attempted int    `json:"attempted"`
	Posted    int    `json:"posted"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	RunID      string        `json:"runId"`
	Trigger    string        `json:"trigger,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Phases     []PhaseResult `json:"phases"`
}

func (r Report) Posted() int {
	n := 0
	for _, p := range r.Phases {
		n += p.Posted
	}
	return n
}

func (r Report) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Run 执行一次完整流程，阶段之间、条目之间严格串行
func (o *Orchestrator) Run(ctx context.Context) Report {
	rep := Report{RunID: ulid.Make().String(), StartedAt: time.Now().UTC()}
	logger := log.With().Str("run_id", rep.RunID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().Msg("run started")
	rep.Phases = append(rep.Phases,
		o.runPhase(ctx, PhaseMarket, o.Market != nil, o.marketPhase),
		o.runPhase(ctx, PhaseAlerts, o.Alerts != nil, o.alertsPhase),
		o.runPhase(ctx, PhaseOpinions, o.Opinions != nil, o.opinionsPhase),
		o.runPhase(ctx, PhaseNews, true, o.newsPhase),
	)
	rep.FinishedAt = time.Now().UTC()

	logger.Info().Int("posted", rep.Posted()).Dur("took", rep.FinishedAt.Sub(rep.StartedAt)).Msg("run finished")
	return rep
}

func (o *Orchestrator) runPhase(ctx context.Context, name string, enabled bool, fn func(context.Context, *PhaseResult)) (res PhaseResult) {
	res = PhaseResult{Name: name, Enabled: enabled}
	if !enabled {
		return res
	}
	logger := zerolog.Ctx(ctx).With().Str("phase", name).Logger()
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			logger.Error().Interface("panic", r).Msg("phase aborted")
		}
	}()
	fn(logger.WithContext(ctx), &res)
	return res
}

func (o *Orchestrator) marketPhase(ctx context.Context, res *PhaseResult) {
	logger := zerolog.Ctx(ctx)
	text, chart, err := o.Market.Snapshot(ctx)
	if err != nil {
		res.Error = err.Error()
		logger.Error().Err(err).Msg("market snapshot failed")
		return
	}
	o.publishText(ctx, res, text, chart)
}

func (o *Orchestrator) alertsPhase(ctx context.Context, res *PhaseResult) {
	logger := zerolog.Ctx(ctx)
	text, err := o.Alerts.Alerts(ctx)
	if err != nil {
		res.Error = err.Error()
		logger.Error().Err(err).Msg("whale alerts failed")
		return
	}
	o.publishText(ctx, res, text, "")
}

// publishText 行情和巨鲸提醒不改写，也不写入去重存储
func (o *Orchestrator) publishText(ctx context.Context, res *PhaseResult, text, imageURL string) {
	if text == "" {
		return
	}
	res.Fetched = 1
	res.Attempted = 1
	if o.Publisher.Publish(ctx, text, imageURL) {
		res.Posted = 1
		zerolog.Ctx(ctx).Info().Msg("posted")
		return
	}
	res.Failed = 1
}

func (o *Orchestrator) opinionsPhase(ctx context.Context, res *PhaseResult) {
	items, err := o.Opinions.Fetch(ctx)
	if err != nil {
		res.Error = err.Error()
		zerolog.Ctx(ctx).Error().Err(err).Msg("fetch opinions failed")
		return
	}
	o.publishItems(ctx, res, items, o.MaxOpinions, false)
}

func (o *Orchestrator) newsPhase(ctx context.Context, res *PhaseResult) {
	merger := o.Merger
	if merger == nil {
		merger = processor.NewSimpleProcessor()
	}
	items := merger.FetchAll(ctx, o.Feeds)
	o.publishItems(ctx, res, items, o.MaxPosts, true)
}

// publishItems 过滤已发布和无链接的条目，按上限逐条 改写 -> (配图) -> 发布 -> 标记
func (o *Orchestrator) publishItems(ctx context.Context, res *PhaseResult, items []collector.NewsItem, limit int, withImage bool) {
	logger := zerolog.Ctx(ctx)
	res.Fetched = len(items)

	fresh := make([]collector.NewsItem, 0, len(items))
	for _, it := range items {
		if !it.HasLink() {
			res.Skipped++
			continue
		}
		if o.Registry.IsPosted(ctx, it.Link) {
			continue
		}
		fresh = append(fresh, it)
	}
	if limit >= 0 && len(fresh) > limit {
		fresh = fresh[:limit]
	}
	logger.Info().Int("fetched", len(items)).Int("new", len(fresh)).Msg("items selected")

	for _, it := range fresh {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("run cancelled, stop publishing")
			return
		}
		o.publishItem(ctx, res, it, withImage)
	}
}

func (o *Orchestrator) publishItem(ctx context.Context, res *PhaseResult, it collector.NewsItem, withImage bool) {
	logger := zerolog.Ctx(ctx).With().Str("link", it.Link).Logger()
	res.Attempted++
	defer func() {
		if r := recover(); r != nil {
			res.Failed++
			logger.Error().Interface("panic", r).Msg("error processing item")
		}
	}()

	caption, ok := o.Rewriter.Rewrite(ctx, it.Title, it.Summary, it.Source)
	if !ok {
		res.Skipped++
		logger.Warn().Msg("skip (rewrite failed)")
		return
	}

	image := ""
	if withImage && o.Images != nil {
		image = o.Images.Resolve(ctx, it)
	}

	if !o.Publisher.Publish(ctx, caption, image) {
		res.Failed++
		logger.Warn().Msg("post failed")
		return
	}
	o.Registry.MarkPosted(ctx, it.Link)
	res.Posted++
	logger.Info().Bool("image", image != "").Msg("posted")
}
