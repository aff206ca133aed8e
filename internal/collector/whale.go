package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	etherscanURL       = "https://api.etherscan.io/api"
	whaleTransfersPage = 50
	whaleMaxAlerts     = 5
)

// Token 以太坊主网上被跟踪的代币；PriceUSD 为近似价格，只用于过滤
type Token struct {
	Symbol   string
	Contract string
	Decimals int
	PriceUSD float64
}

// DefaultTokens USDT / USDC 按 1 美元计，WETH 价格由配置传入
func DefaultTokens(wethUSD float64) []Token {
	return []Token{
		{Symbol: "USDT", Contract: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6, PriceUSD: 1},
		{Symbol: "USDC", Contract: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, PriceUSD: 1},
		{Symbol: "WETH", Contract: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18, PriceUSD: wethUSD},
	}
}

// WhaleTracker 通过 Etherscan tokentx 接口查找大额转账
type WhaleTracker struct {
	BaseURL string
	APIKey  string
	MinUSD  float64
	Tokens  []Token
	Client  *http.Client
}

func NewWhaleTracker(apiKey string, minUSD, wethUSD float64) *WhaleTracker {
	return &WhaleTracker{
		BaseURL: etherscanURL,
		APIKey:  apiKey,
		MinUSD:  minUSD,
		Tokens:  DefaultTokens(wethUSD),
		Client:  newAPIClient(),
	}
}

func (w *WhaleTracker) Name() string {
	return "etherscan_whales"
}

type etherscanResp struct {
	Status string `json:"status"`
	// 失败时 result 是一段字符串，成功时是数组
	Result json.RawMessage `json:"result"`
}

type tokenTx struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Hash  string `json:"hash"`
}

type whaleTransfer struct {
	From     string
	To       string
	Amount   float64
	ValueUSD float64
	Symbol   string
	Hash     string
}

// Alerts 返回格式化后的大额转账列表；没有 key 或没有命中时返回空串
func (w *WhaleTracker) Alerts(ctx context.Context) (string, error) {
	if w.APIKey == "" {
		log.Warn().Msg("ETHERSCAN_API_KEY not set, skipping whale alerts")
		return "", nil
	}

	var all []whaleTransfer
	for _, tok := range w.Tokens {
		txs, err := w.fetchTransfers(ctx, tok)
		if err != nil {
			// 单个代币失败不影响其它代币
			log.Debug().Err(err).Str("token", tok.Symbol).Msg("etherscan tokentx failed")
			continue
		}
		all = append(all, txs...)
	}

	return formatWhaleAlerts(all), nil
}

func (w *WhaleTracker) fetchTransfers(ctx context.Context, tok Token) ([]whaleTransfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", tok.Contract)
	params.Set("page", "1")
	params.Set("offset", fmt.Sprint(whaleTransfersPage))
	params.Set("sort", "desc")
	params.Set("apikey", w.APIKey)

	var resp etherscanResp
	if err := getJSON(ctx, w.Client, w.BaseURL, params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "1" || len(resp.Result) == 0 {
		return nil, nil
	}

	var txs []tokenTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return filterTransfers(txs, tok, w.MinUSD), nil
}

// filterTransfers 换算成代币数量与美元价值，丢弃低于阈值的转账
func filterTransfers(txs []tokenTx, tok Token, minUSD float64) []whaleTransfer {
	var out []whaleTransfer
	for _, tx := range txs {
		amount, ok := tokenAmount(tx.Value, tok.Decimals)
		if !ok {
			continue
		}
		usd := amount * tok.PriceUSD
		if usd < minUSD {
			continue
		}
		out = append(out, whaleTransfer{
			From:     tx.From,
			To:       tx.To,
			Amount:   amount,
			ValueUSD: usd,
			Symbol:   tok.Symbol,
			Hash:     tx.Hash,
		})
	}
	return out
}

// tokenAmount 原始整数值可能超过 int64，使用大数换算
func tokenAmount(raw string, decimals int) (float64, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return 0, false
	}
	f := new(big.Float).SetInt(v)
	if decimals > 0 {
		div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, div)
	}
	out, _ := f.Float64()
	if math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

func formatWhaleAlerts(all []whaleTransfer) string {
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ValueUSD > all[j].ValueUSD
	})
	if len(all) > whaleMaxAlerts {
		all = all[:whaleMaxAlerts]
	}
	if len(all) == 0 {
		return ""
	}

	lines := []string{"🐋 Whale moves"}
	for _, t := range all {
		lines = append(lines, fmt.Sprintf("• %s %s (%s) %s -> %s",
			formatAmount(t.Amount), t.Symbol, formatUSD(t.ValueUSD),
			shortAddress(t.From), shortAddress(t.To)))
	}
	return strings.Join(lines, "\n")
}

func formatAmount(a float64) string {
	switch {
	case a >= 1_000_000:
		return fmt.Sprintf("%.1fM", a/1e6)
	case a >= 1_000:
		return fmt.Sprintf("%.1fK", a/1e3)
	default:
		return fmt.Sprintf("%.2f", a)
	}
}

func formatUSD(v float64) string {
	if v >= 1e6 {
		return fmt.Sprintf("$%.1fM", v/1e6)
	}
	return fmt.Sprintf("$%.0fK", v/1e3)
}

func shortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
