package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// 默认订阅的加密货币新闻源
var defaultFeedURLs = []string{
	"https://cointelegraph.com/rss",
	"https://www.coindesk.com/arc/outboundfeeds/rss/",
	"https://bitcoinist.com/feed/",
	"https://cryptopotato.com/feed/",
	"https://newsbtc.com/feed/",
}

// Config 进程启动时构造一次，之后只读；各组件通过构造函数拿到需要的字段
type Config struct {
	AppPort string
	// 管理接口的 Basic Auth，两者都配置时才启用
	BasicAuthUser string
	BasicAuthPass string

	// Telegram 频道
	TelegramToken     string
	TelegramChannelID string

	// 改写后端：openai / groq / ollama / gemini
	RewriteProvider string
	OpenAIKey       string
	OpenAIModel     string
	GroqKey         string
	GroqModel       string
	OllamaBaseURL   string
	OllamaModel     string
	GeminiKey       string
	GeminiModel     string

	FeedURLs []string

	PostInterval      time.Duration
	CronSpec          string
	MaxPostsPerRun    int
	MaxOpinionsPerRun int

	DefaultImageURL string
	FetchOGImage    bool

	EtherscanKey   string
	CryptoPanicKey string

	EnableMarketSnapshot bool
	EnableWhaleAlerts    bool
	WhaleMinUSD          float64
	WETHPriceUSD         float64

	// 已发布链接的存储：file / sqlite / redis / postgres
	StoreBackend    string
	PostedLinksFile string
	SQLitePath      string
	RedisAddr       string
	PostgresDSN     string
	MaxPostedLinks  int

	LogDir   string
	LogLevel string
}

// Load 读取环境变量（工作目录下的 .env 可选）
func Load() *Config {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	interval := time.Duration(getEnvInt("POST_INTERVAL_MINUTES", 60)) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),

		TelegramToken:     strings.TrimSpace(getEnv("TELEGRAM_BOT_TOKEN", "")),
		TelegramChannelID: strings.TrimSpace(getEnv("TELEGRAM_CHANNEL_ID", "")),

		RewriteProvider: strings.ToLower(strings.TrimSpace(getEnv("REWRITE_PROVIDER", "openai"))),
		OpenAIKey:       strings.TrimSpace(getEnv("OPENAI_API_KEY", "")),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GroqKey:         strings.TrimSpace(getEnv("GROQ_API_KEY", "")),
		GroqModel:       getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		OllamaBaseURL:   strings.TrimRight(strings.TrimSpace(getEnv("OLLAMA_BASE_URL", "http://localhost:11434")), "/"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.2"),
		GeminiKey:       strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		FeedURLs: getEnvList("RSS_FEED_URLS", defaultFeedURLs),

		PostInterval:      interval,
		CronSpec:          getEnv("CRON_SPEC", fmt.Sprintf("@every %s", interval)),
		MaxPostsPerRun:    getEnvInt("MAX_POSTS_PER_RUN", 3),
		MaxOpinionsPerRun: getEnvInt("MAX_OPINIONS_PER_RUN", 2),

		DefaultImageURL: strings.TrimSpace(getEnv("DEFAULT_IMAGE_URL", "")),
		FetchOGImage:    getEnvBool("FETCH_OG_IMAGE", true),

		EtherscanKey:   strings.TrimSpace(getEnv("ETHERSCAN_API_KEY", "")),
		CryptoPanicKey: strings.TrimSpace(getEnv("CRYPTOPANIC_API_KEY", "")),

		EnableMarketSnapshot: getEnvBool("ENABLE_MARKET_SNAPSHOT", true),
		EnableWhaleAlerts:    getEnvBool("ENABLE_WHALE_ALERTS", true),
		WhaleMinUSD:          getEnvFloat("WHALE_MIN_USD", 1_000_000),
		WETHPriceUSD:         getEnvFloat("WETH_PRICE_USD", 3500),

		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", "file")),
		PostedLinksFile: getEnv("POSTED_LINKS_FILE", "data/posted_links.json"),
		SQLitePath:      getEnv("SQLITE_PATH", "data/posted_links.db"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		PostgresDSN:     getEnv("POSTGRES_DSN", "host=localhost user=cryptobot password=cryptobot dbname=cryptobot port=5432 sslmode=disable TimeZone=UTC"),
		MaxPostedLinks:  getEnvInt("MAX_POSTED_LINKS", 500),

		LogDir:   getEnv("LOG_DIR", "logs"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	log.Info().
		Str("port", cfg.AppPort).
		Str("cron", cfg.CronSpec).
		Str("provider", cfg.RewriteProvider).
		Str("store", cfg.StoreBackend).
		Int("feeds", len(cfg.FeedURLs)).
		Msg("config loaded")
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid number, using default")
		return def
	}
	return f
}

// getEnvBool 只有 true / 1 / yes 视为开启
func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// getEnvList 逗号分隔，去掉空项；未设置或全为空时使用默认列表
func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}
