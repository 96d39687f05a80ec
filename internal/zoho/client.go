// Package zoho is the external sync adapter for Zoho Inventory: it translates
// internal outlets and item codes to external identifiers and pushes transfer
// orders and invoices. It never mutates internal ledgers.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/soufra-erp/soufra-erp/internal/shared"
)

// Config holds the Zoho Inventory connection settings.
type Config struct {
	BaseURL        string
	AccountsURL    string
	OrganizationID string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
}

// RemoteError is a non-2xx or transport failure from the external API.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("zoho: remote error %d: %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error { return shared.ErrRemote }

// TokenProvider supplies a valid access token. Token acquisition is a
// separate collaborator with its own refresh flow.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client is a thin JSON client over the Zoho Inventory REST API.
type Client struct {
	http    *http.Client
	baseURL string
	orgID   string
	tokens  TokenProvider
}

// NewClient constructs Client. httpClient may be nil.
func NewClient(cfg Config, tokens TokenProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, baseURL: cfg.BaseURL, orgID: cfg.OrganizationID, tokens: tokens}
}

type apiEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("zoho: token: %w", err)
	}

	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("zoho: endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("organization_id", c.orgID)
	endpoint.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("zoho: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("zoho: build request: %w", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &RemoteError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope apiEnvelope
		message := string(raw)
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			message = envelope.Message
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: message}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("zoho: decode response: %w", err)
		}
	}
	return nil
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}
