package main

import (
	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/LJTian/CryptoNewsBot/internal/config"
	"github.com/LJTian/CryptoNewsBot/internal/imagefetch"
	"github.com/LJTian/CryptoNewsBot/internal/pipeline"
	"github.com/LJTian/CryptoNewsBot/internal/processor"
	"github.com/LJTian/CryptoNewsBot/internal/publisher"
	"github.com/LJTian/CryptoNewsBot/internal/rewriter"
	"github.com/LJTian/CryptoNewsBot/internal/storage"
	"github.com/rs/zerolog/log"
)

type components struct {
	Orchestrator *pipeline.Orchestrator
	Registry     storage.Registry
	Runs         storage.RunStore
}

func (d *components) Close() {
	if err := d.Registry.Close(); err != nil {
		log.Warn().Err(err).Msg("close registry")
	}
}

// build 按配置组装一次运行需要的全部组件
func build(cfg *config.Config) *components {
	registry, runs := storage.OpenOrFallback(cfg)

	gw, err := rewriter.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("rewrite provider misconfigured, every rewrite will fail")
		gw = rewriter.Disabled(err)
	} else {
		log.Info().Str("provider", gw.Provider()).Msg("rewriter ready")
	}

	o := &pipeline.Orchestrator{
		Feeds:       collector.NewRSSFetchers(cfg.FeedURLs, nil),
		Merger:      processor.NewSimpleProcessor(),
		Opinions:    collector.NewOpinionsFetcher(cfg.CryptoPanicKey),
		Rewriter:    gw,
		Images:      imagefetch.NewResolver(cfg.FetchOGImage, cfg.DefaultImageURL),
		Publisher:   publisher.NewTelegram(cfg.TelegramToken, cfg.TelegramChannelID),
		Registry:    registry,
		MaxPosts:    cfg.MaxPostsPerRun,
		MaxOpinions: cfg.MaxOpinionsPerRun,
	}
	if cfg.EnableMarketSnapshot {
		o.Market = collector.NewMarketFetcher()
	}
	if cfg.EnableWhaleAlerts {
		o.Alerts = collector.NewWhaleTracker(cfg.EtherscanKey, cfg.WhaleMinUSD, cfg.WETHPriceUSD)
	}

	return &components{Orchestrator: o, Registry: registry, Runs: runs}
}
