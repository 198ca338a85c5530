// Package persistence implements the spreadsheet-backed candidate store with
// its SQLite fallback and notification history.
package persistence

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/benchscope/benchscope/pkg/apperr"
	"github.com/benchscope/benchscope/pkg/logger"
	"github.com/benchscope/benchscope/pkg/resilience"
)

const defaultFeishuBase = "https://open.feishu.cn"

// tokenSafetyMargin expires cached tenant tokens early so in-flight requests
// never race the real expiry.
const tokenSafetyMargin = 5 * time.Minute

// Feishu API codes that mean the tenant token must be refreshed.
var tokenExpiredCodes = map[int]struct{}{
	99991661: {},
	99991663: {},
	99991668: {},
}

// BitableClient handles Feishu auth, request signing and the circuit breaker
// shared by all Bitable calls.
type BitableClient struct {
	baseURL   string
	appID     string
	appSecret string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	retryCfg  resilience.RetryConfig
	log       *logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewBitableClient creates a Feishu client for the given app credentials.
func NewBitableClient(appID, appSecret string, client *http.Client, log *logger.Logger) *BitableClient {
	if log == nil {
		log = logger.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "feishu-bitable",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &BitableClient{
		baseURL:   defaultFeishuBase,
		appID:     appID,
		appSecret: appSecret,
		client:    client,
		breaker:   breaker,
		retryCfg:  resilience.DefaultRetryConfig(),
		log:       log,
	}
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// accessToken returns a cached tenant token, fetching a fresh one when the
// cached token is within the safety margin of expiring.
func (c *BitableClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	return c.refreshTokenLocked(ctx)
}

// forceRefreshToken discards the cached token. Used after the API reports the
// token expired server-side.
func (c *BitableClient) forceRefreshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return c.refreshTokenLocked(ctx)
}

func (c *BitableClient) refreshTokenLocked(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.SpreadsheetUnavailable("tenant token request failed", err)
	}
	defer resp.Body.Close()

	var result tenantTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.SpreadsheetUnavailable("tenant token response unreadable", err)
	}
	if result.Code != 0 {
		return "", apperr.SpreadsheetUnavailable(
			fmt.Sprintf("tenant token rejected: code=%d msg=%s", result.Code, result.Msg), nil)
	}

	c.token = result.TenantAccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.Expire)*time.Second - tokenSafetyMargin)
	return c.token, nil
}

// apiEnvelope is the common Feishu response wrapper.
type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// call performs one authenticated API call through the circuit breaker and
// retry policy, decoding data into dest when non-nil. A token-expired code
// triggers exactly one forced refresh.
func (c *BitableClient) call(ctx context.Context, method, path string, body any, dest any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, resilience.Retry(ctx, c.retryCfg, func() error {
			return c.doOnce(ctx, method, path, body, dest, true)
		})
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.SpreadsheetUnavailable("spreadsheet circuit breaker open", err)
	}
	return err
}

func (c *BitableClient) doOnce(ctx context.Context, method, path string, body, dest any, allowRefresh bool) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return resilience.NoRetry(err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return resilience.NoRetry(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return resilience.NoRetry(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.SpreadsheetUnavailable("bitable request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apperr.RateLimited("feishu-bitable")
	}
	if resp.StatusCode >= 500 {
		return apperr.SpreadsheetUnavailable(
			fmt.Sprintf("bitable server error: status %d", resp.StatusCode), nil)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apperr.SpreadsheetUnavailable("bitable response unreadable", err)
	}

	if _, expired := tokenExpiredCodes[envelope.Code]; expired {
		if !allowRefresh {
			return resilience.NoRetry(apperr.TokenExpired("feishu-bitable"))
		}
		if _, err := c.forceRefreshToken(ctx); err != nil {
			return resilience.NoRetry(err)
		}
		return c.doOnce(ctx, method, path, body, dest, false)
	}
	if envelope.Code != 0 {
		return resilience.NoRetry(apperr.SpreadsheetUnavailable(
			fmt.Sprintf("bitable api error: code=%d msg=%s", envelope.Code, envelope.Msg), nil))
	}

	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return resilience.NoRetry(fmt.Errorf("decode bitable data: %w", err))
		}
	}
	return nil
}

func bitablePath(appToken, tableID, suffix string) string {
	path := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s", appToken, tableID)
	if suffix != "" {
		path += "/" + strings.TrimLeft(suffix, "/")
	}
	return path
}
