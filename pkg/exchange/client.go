// Package exchange is a minimal REST client for the upstream bar
// provider. It handles TOTP-based session login and historical candle
// fetches used for indicator warm-up backfill.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"signal-systemv1/internal/model"

	"github.com/pquerna/otp/totp"
)

// Config holds client credentials and connection settings.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	BaseURL string        // default: https://api.example-exchange.com
	Timeout time.Duration // default: 7s
	Debug   bool
}

const defaultBaseURL = "https://api.example-exchange.com"

var routes = map[string]string{
	"api.login":   "/rest/auth/v1/loginByPassword",
	"api.logout":  "/rest/secure/v1/logout",
	"api.candles": "/rest/secure/v1/getCandleData",
}

// Client is an authenticated history client. Not safe for concurrent
// use during login; the engine logs in once at startup.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	accessToken string

	// Called on 403 TokenException so the owner can re-login.
	SessionExpiryHook func()
}

// NewClient creates a client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Login generates a fresh TOTP code and opens a session.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generation failed: %w", err)
	}

	res, err := c.post(ctx, "api.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	})
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	st, _ := res["status"].(bool)
	if !st {
		msg, _ := res["message"].(string)
		return fmt.Errorf("login rejected: %s", msg)
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return errors.New("unexpected login response format")
	}
	jwtToken, _ := data["jwtToken"].(string)
	if jwtToken == "" {
		return errors.New("login response missing jwtToken")
	}
	c.accessToken = jwtToken

	log.Printf("[exchange] session established for %s", c.cfg.ClientCode)
	return nil
}

// Logout terminates the session. Best effort.
func (c *Client) Logout(ctx context.Context) {
	if c.accessToken == "" {
		return
	}
	if _, err := c.post(ctx, "api.logout", map[string]any{"clientcode": c.cfg.ClientCode}); err != nil {
		log.Printf("[exchange] logout failed: %v", err)
	}
	c.accessToken = ""
}

// FetchBars returns closed bars for [from, to] at the given timeframe
// (seconds), oldest first. Rows come back as [ts, o, h, l, c, v] arrays.
func (c *Client) FetchBars(ctx context.Context, symbol string, timeframe int, from, to time.Time) ([]model.Bar, error) {
	res, err := c.post(ctx, "api.candles", map[string]any{
		"symbol":   symbol,
		"interval": fmt.Sprintf("%ds", timeframe),
		"fromdate": from.UTC().Format(time.RFC3339),
		"todate":   to.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("candle fetch failed: %w", err)
	}

	st, _ := res["status"].(bool)
	if !st {
		msg, _ := res["message"].(string)
		return nil, fmt.Errorf("candle fetch rejected: %s", msg)
	}
	rows, ok := res["data"].([]any)
	if !ok {
		return nil, errors.New("unexpected candle response format")
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, raw := range rows {
		row, ok := raw.([]any)
		if !ok || len(row) < 6 {
			continue
		}
		vals := make([]float64, 6)
		bad := false
		for i := 0; i < 6; i++ {
			v, ok := row[i].(float64)
			if !ok {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			continue
		}
		bars = append(bars, model.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			TS:        time.Unix(int64(vals[0]), 0).UTC(),
			Open:      vals[1],
			High:      vals[2],
			Low:       vals[3],
			Close:     vals[4],
			Volume:    vals[5],
		})
	}
	return bars, nil
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-PrivateKey", c.cfg.APIKey)
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}

	b, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	if c.cfg.Debug {
		log.Printf("[exchange] POST %s params=%v", uri, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.cfg.Debug {
		log.Printf("[exchange] response code=%d body=%s", resp.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}

	if et, ok := out["error_type"].(string); ok && et != "" {
		if c.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && et == "TokenException" {
			c.SessionExpiryHook()
		}
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	return out, nil
}
