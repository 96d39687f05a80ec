package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenCacheKey = "zoho:access_token"

// TokenSource implements the OAuth refresh-token flow. Access tokens are
// cached in Redis so worker and API processes share one token instead of
// burning the refresh quota.
type TokenSource struct {
	cfg   Config
	http  *http.Client
	redis *redis.Client

	mu sync.Mutex
}

// NewTokenSource constructs TokenSource. httpClient may be nil.
func NewTokenSource(cfg Config, rdb *redis.Client, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenSource{cfg: cfg, http: httpClient, redis: rdb}
}

// Token returns a cached access token, refreshing through the accounts server
// on a cache miss.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	token, err := s.redis.Get(ctx, tokenCacheKey).Result()
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("zoho: token cache: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	token, err = s.redis.Get(ctx, tokenCacheKey).Result()
	if err == nil && token != "" {
		return token, nil
	}

	token, ttl, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, tokenCacheKey, token, ttl).Err(); err != nil {
		return "", fmt.Errorf("zoho: cache token: %w", err)
	}
	return token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (s *TokenSource) refresh(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"refresh_token": {s.cfg.RefreshToken},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.AccountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("zoho: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", 0, &RemoteError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, &RemoteError{StatusCode: resp.StatusCode, Message: "malformed token response"}
	}
	if resp.StatusCode != http.StatusOK || body.Error != "" || body.AccessToken == "" {
		message := body.Error
		if message == "" {
			message = "token refresh rejected"
		}
		return "", 0, &RemoteError{StatusCode: resp.StatusCode, Message: message}
	}

	// Expire the cache a minute early so a token is never used at the edge of
	// its validity window.
	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	return body.AccessToken, ttl, nil
}
