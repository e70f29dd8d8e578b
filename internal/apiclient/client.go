// Package apiclient is the typed HTTP client for the dugtong REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout applies to every request.
const DefaultTimeout = 30 * time.Second

const resultSuccess = 2000

// envelope the API's single response shape.
type envelope struct {
	Code    *int            `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Client wraps resty with bearer auth, envelope unwrapping and 401 handling.
type Client struct {
	httpClient     *resty.Client
	tokens         TokenStore
	logger         *zap.Logger
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithOnUnauthorized registers a hook called once for every 401 response, after tokens are cleared.
func WithOnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.SetTimeout(d) }
}

// New creates a client for the API at baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenStore, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c := &Client{httpClient: client, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens the client's token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

type requestConfig struct {
	requiresAuth bool
	query        url.Values
}

// RequestOption configures one request.
type RequestOption func(*requestConfig)

// NoAuth sends the request without an Authorization header.
func NoAuth() RequestOption {
	return func(rc *requestConfig) { rc.requiresAuth = false }
}

// WithQuery adds query parameters.
func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) { rc.query = q }
}

func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, endpoint, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out, opts...)
}

// Do sends one request and decodes the envelope's result into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	resp, err := c.send(ctx, method, endpoint, body, opts)
	if err != nil {
		return err
	}
	return decodeResult(method, endpoint, resp.StatusCode(), resp.Body(), out)
}

// Raw sends one request and returns the undecoded body of a 2xx response (file downloads).
func (c *Client) Raw(ctx context.Context, method, endpoint string, opts ...RequestOption) ([]byte, error) {
	resp, err := c.send(ctx, method, endpoint, nil, opts)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, opts []RequestOption) (*resty.Response, error) {
	rc := requestConfig{requiresAuth: true}
	for _, opt := range opts {
		opt(&rc)
	}

	req := c.httpClient.R().SetContext(ctx)
	if rc.requiresAuth && c.tokens != nil {
		t, err := c.tokens.Get(ctx)
		if err != nil {
			c.logger.Warn("failed to read tokens", zap.Error(err))
		} else if t.AccessToken != "" {
			req.SetAuthToken(t.AccessToken)
		}
	}
	if rc.query != nil {
		req.SetQueryParamsFromValues(rc.query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		c.logger.Error("API request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return nil, &APIError{Kind: KindNetwork, Method: method, Endpoint: endpoint, Message: err.Error(), Err: err}
	}

	status := resp.StatusCode()
	if status == http.StatusUnauthorized {
		// without credentials a 401 rejects the request itself, not the stored session
		if rc.requiresAuth {
			c.handleUnauthorized(ctx)
		}
		return nil, &APIError{
			Kind:     KindUnauthorized,
			Status:   status,
			Method:   method,
			Endpoint: endpoint,
			Message:  errorMessage(resp.Body(), status),
		}
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("API returned error status",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status_code", status),
		)
		return nil, &APIError{
			Kind:     KindHTTP,
			Status:   status,
			Method:   method,
			Endpoint: endpoint,
			Message:  errorMessage(resp.Body(), status),
		}
	}
	return resp, nil
}

func (c *Client) handleUnauthorized(ctx context.Context) {
	if c.tokens != nil {
		if err := c.tokens.Clear(ctx); err != nil {
			c.logger.Error("failed to clear tokens after 401", zap.Error(err))
		}
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// errorMessage prefers the JSON error/message field, then the raw text, then the status text.
func errorMessage(body []byte, status int) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(trimmed, &payload) == nil {
			if payload.Error != "" {
				return payload.Error
			}
			if payload.Message != "" {
				return payload.Message
			}
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			return string(trimmed)
		}
	}
	return http.StatusText(status)
}

func decodeResult(method, endpoint string, status int, body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if out == nil {
			return nil
		}
		return &APIError{Kind: KindDecode, Status: status, Method: method, Endpoint: endpoint, Message: "invalid response body", Err: err}
	}
	if env.Code != nil && *env.Code != resultSuccess {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Kind: KindRemote, Status: status, Method: method, Endpoint: endpoint, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &APIError{Kind: KindDecode, Status: status, Method: method, Endpoint: endpoint, Message: "invalid result", Err: err}
	}
	return nil
}
