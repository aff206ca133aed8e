package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/collector"
	"github.com/rs/zerolog/log"
)

const (
	telegramAPI = "https://api.telegram.org"

	captionMaxLen = 1024
	// 每次成功发布后固定等待，避免触发频道发言频率限制
	postDelay      = 1500 * time.Millisecond
	requestTimeout = 30 * time.Second
)

// Telegram 通过 Bot API 往频道发帖
type Telegram struct {
	BaseURL   string
	Token     string
	ChannelID string
	Client    *http.Client
	// Sleep 测试时可替换，避免真实等待
	Sleep func(time.Duration)

	scrubber *strings.Replacer
}

func NewTelegram(token, channelID string) *Telegram {
	return &Telegram{
		BaseURL:   telegramAPI,
		Token:     token,
		ChannelID: channelID,
		Client:    &http.Client{Timeout: requestTimeout},
		Sleep:     time.Sleep,
	}
}

type sendPhotoRequest struct {
	ChatID                string `json:"chat_id"`
	Photo                 string `json:"photo"`
	Caption               string `json:"caption"`
	ShowCaptionAboveMedia bool   `json:"show_caption_above_media"`
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Publish 有图（以 http 开头）时发图片并把说明放在图片上方，否则发纯文本。
// 只以响应里的 ok 字段判断成功；成功后固定等待 postDelay。
func (t *Telegram) Publish(ctx context.Context, caption, imageURL string) bool {
	if t.Token == "" || t.ChannelID == "" {
		log.Error().Msg("TELEGRAM_BOT_TOKEN or TELEGRAM_CHANNEL_ID not set")
		return false
	}

	text := truncateRunes(strings.TrimSpace(caption), captionMaxLen)
	if text == "" {
		log.Warn().Msg("empty caption, skipping post")
		return false
	}

	var (
		method string
		body   any
	)
	if strings.HasPrefix(imageURL, "http") {
		method = "sendPhoto"
		body = sendPhotoRequest{
			ChatID:                t.ChannelID,
			Photo:                 imageURL,
			Caption:               text,
			ShowCaptionAboveMedia: true,
		}
	} else {
		method = "sendMessage"
		body = sendMessageRequest{ChatID: t.ChannelID, Text: text}
	}

	resp, err := t.call(ctx, method, body)
	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("telegram request failed")
		return false
	}
	if !resp.OK {
		log.Warn().Str("method", method).Int("error_code", resp.ErrorCode).Str("description", resp.Description).Msg("telegram api rejected post")
		return false
	}

	if t.Sleep != nil {
		t.Sleep(postDelay)
	}
	return true
}

func (t *Telegram) call(ctx context.Context, method string, args any) (*apiResponse, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(t.BaseURL, "/") + "/bot" + t.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, t.scrub(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", collector.UserAgent)

	res, err := t.Client.Do(req)
	if err != nil {
		// url.Error 会带上完整地址，其中包含 token
		return nil, t.scrub(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if err != nil {
		return nil, t.scrub(err)
	}
	var out apiResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("status %d: invalid response: %s", res.StatusCode, truncateRunes(string(raw), 200))
		}
	}
	return &out, nil
}

func (t *Telegram) scrub(err error) error {
	if t.Token == "" {
		return err
	}
	if t.scrubber == nil {
		t.scrubber = strings.NewReplacer(t.Token, "[EXPUNGED]")
	}
	return fmt.Errorf("%s", t.scrubber.Replace(err.Error()))
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
