package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// UserAgent 访问所有上游时使用
	UserAgent = "CryptoNewsBot/1.0"

	apiClientTimeout    = 15 * time.Second
	apiMaxResponseBytes = 2 << 20 // 2MB
)

func newAPIClient() *http.Client {
	return &http.Client{Timeout: apiClientTimeout}
}

// getJSON 发起 GET 请求并把响应解码到 out，响应体限制在 2MB 以内
func getJSON(ctx context.Context, client *http.Client, rawURL string, params url.Values, out any) error {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(io.LimitReader(resp.Body, apiMaxResponseBytes)).Decode(out)
}
