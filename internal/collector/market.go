package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	coinGeckoMarketsURL = "https://api.coingecko.com/api/v3/coins/markets"
	// 接口没有返回图片时使用比特币页面，Telegram 会生成预览
	coinGeckoFallbackChart = "https://www.coingecko.com/en/coins/bitcoin"
	marketMaxAssets        = 4
)

var defaultMarketCoins = []string{"bitcoin", "ethereum", "solana", "binancecoin"}

// MarketFetcher 从 CoinGecko 拉取头部资产价格与 24h 涨跌，无需 API key
type MarketFetcher struct {
	BaseURL string
	Coins   []string
	Client  *http.Client
}

func NewMarketFetcher() *MarketFetcher {
	return &MarketFetcher{
		BaseURL: coinGeckoMarketsURL,
		Coins:   defaultMarketCoins,
		Client:  newAPIClient(),
	}
}

func (m *MarketFetcher) Name() string {
	return "coingecko_markets"
}

// 对应 /coins/markets 的响应条目
type coinMarket struct {
	Symbol    string   `json:"symbol"`
	Image     string   `json:"image"`
	Price     *float64 `json:"current_price"`
	Change24h *float64 `json:"price_change_percentage_24h"`
}

// Snapshot 返回格式化后的行情文本和一张配图；没有数据时 text 为空
func (m *MarketFetcher) Snapshot(ctx context.Context) (text, imageURL string, err error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(m.Coins, ","))
	params.Set("order", "market_cap_desc")
	params.Set("per_page", fmt.Sprint(marketMaxAssets))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	var data []coinMarket
	if err := getJSON(ctx, m.Client, m.BaseURL, params, &data); err != nil {
		return "", "", fmt.Errorf("coingecko: %w", err)
	}
	if len(data) == 0 {
		log.Info().Msg("coingecko returned no assets")
		return "", "", nil
	}

	text, imageURL = formatSnapshot(data)
	return text, imageURL, nil
}

func formatSnapshot(data []coinMarket) (string, string) {
	if len(data) > marketMaxAssets {
		data = data[:marketMaxAssets]
	}

	lines := []string{"📊 Market Update"}
	chart := ""
	for _, c := range data {
		sym := strings.ToUpper(strings.TrimSpace(c.Symbol))
		if sym != "" && c.Price != nil {
			price := formatPrice(*c.Price)
			if c.Change24h != nil {
				pct := *c.Change24h
				emoji, sign := "🟢", "+"
				if pct < 0 {
					emoji, sign = "🔴", ""
				}
				lines = append(lines, fmt.Sprintf("%s %s %s (%s%.1f%%)", emoji, sym, price, sign, pct))
			} else {
				lines = append(lines, fmt.Sprintf("⚪ %s %s", sym, price))
			}
		}
		// 第一张可用的资产图片作为配图
		if chart == "" && c.Image != "" {
			chart = c.Image
		}
	}
	if chart == "" {
		chart = coinGeckoFallbackChart
	}
	return strings.Join(lines, "\n"), chart
}

func formatPrice(p float64) string {
	switch {
	case p >= 1000:
		return fmt.Sprintf("$%.1fk", p/1000)
	case p >= 1:
		return fmt.Sprintf("$%.2f", p)
	default:
		return fmt.Sprintf("$%.4f", p)
	}
}
