// Package api is the HTTP client for the auth and media services. Every call
// goes through one pipeline that attaches the bearer token and, on a 401,
// refreshes the token once and retries once.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/filedeck/filedeck/internal/tokenstore"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

// Config configures a Client.
type Config struct {
	AuthURL  string
	MediaURL string
	Store    tokenstore.Store
	// HTTPClient is used as-is when set; otherwise a client with a cookie jar
	// is built. Deadlines come from each call's ctx.
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	// OnSessionExpired runs after a failed refresh has cleared the store.
	OnSessionExpired func()
}

// Client is safe for concurrent use.
type Client struct {
	authURL   string
	mediaURL  string
	store     tokenstore.Store
	http      *http.Client
	log       *slog.Logger
	userAgent string
	onExpired func()

	refreshGroup singleflight.Group

	Auth  *Auth
	Media *Media
}

// New builds a Client. A nil store means an in-memory one.
func New(cfg Config) *Client {
	store := cfg.Store
	if store == nil {
		store = tokenstore.NewMemory(tokenstore.Session{})
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		httpClient = &http.Client{Jar: jar}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		authURL:   strings.TrimRight(cfg.AuthURL, "/"),
		mediaURL:  strings.TrimRight(cfg.MediaURL, "/"),
		store:     store,
		http:      httpClient,
		log:       log,
		userAgent: cfg.UserAgent,
		onExpired: cfg.OnSessionExpired,
	}
	c.Auth = &Auth{c: c}
	c.Media = &Media{c: c}
	return c
}

// Store returns the token store the client reads from.
func (c *Client) Store() tokenstore.Store {
	return c.store
}

func (c *Client) AuthURL(path string) string  { return c.authURL + path }
func (c *Client) MediaURL(path string) string { return c.mediaURL + path }

// --- request options ---

type requestConfig struct {
	noAuth  bool
	accept  string
	headers http.Header
	query   url.Values
}

// RequestOption tweaks a single call.
type RequestOption func(*requestConfig)

// WithoutAuth sends the request without a bearer token and disables the
// refresh-on-401 behaviour. Used for login, registration and public links.
func WithoutAuth() RequestOption {
	return func(rc *requestConfig) { rc.noAuth = true }
}

// WithHeader adds a header, overriding the pipeline defaults.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) { rc.headers.Set(key, value) }
}

// WithQuery merges values into the request URL's query string.
func WithQuery(values url.Values) RequestOption {
	return func(rc *requestConfig) {
		for k, vs := range values {
			for _, v := range vs {
				rc.query.Add(k, v)
			}
		}
	}
}

func buildConfig(opts []RequestOption) *requestConfig {
	rc := &requestConfig{accept: "application/json", headers: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// bodyFunc produces a fresh request body for every attempt.
type bodyFunc func() (io.Reader, string, error)

func noBody() (io.Reader, string, error) { return nil, "", nil }

func jsonBody(v any) (bodyFunc, error) {
	if v == nil {
		return noBody, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return func() (io.Reader, string, error) {
		return bytes.NewReader(data), "application/json", nil
	}, nil
}

// --- pipeline ---

// Do sends a JSON request and decodes the JSON response into out (which may be
// nil).
func (c *Client) Do(ctx context.Context, method, rawURL string, body, out any, opts ...RequestOption) error {
	build, err := jsonBody(body)
	if err != nil {
		return err
	}
	resp, err := c.execute(ctx, method, rawURL, build, buildConfig(opts))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) Get(ctx context.Context, rawURL string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, rawURL, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, rawURL string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, rawURL, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, rawURL string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, rawURL, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, rawURL string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, rawURL, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, rawURL string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, rawURL, nil, out, opts...)
}

// execute runs one request through the auth/refresh pipeline. The returned
// response always has a 2xx status and an open body.
func (c *Client) execute(ctx context.Context, method, rawURL string, build bodyFunc, rc *requestConfig) (*http.Response, error) {
	token := ""
	if !rc.noAuth {
		token = c.store.Get()
	}

	resp, err := c.send(ctx, method, rawURL, build, rc, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && !rc.noAuth {
		drain(resp)
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, method, rawURL, build, rc, c.store.Get())
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, build bodyFunc, rc *requestConfig, token string) (*http.Response, error) {
	target, err := withQuery(rawURL, rc.query)
	if err != nil {
		return nil, err
	}
	body, contentType, err := build()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", rc.accept)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range rc.headers {
		req.Header[k] = vs
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		netErr := &NetworkError{Method: method, URL: target, Err: err}
		c.log.Error("request failed",
			"method", method,
			"url", target,
			"request_id", req.Header.Get("X-Request-ID"),
			"error", err)
		return nil, netErr
	}
	c.log.Debug("request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get("X-Request-ID"))
	return resp, nil
}

// refreshTimeout bounds the shared refresh call, which outlives the caller
// that started it.
const refreshTimeout = 30 * time.Second

// refresh obtains a new access token. Concurrent callers share one refresh
// call that is detached from any single caller's cancellation. On failure
// the store is cleared once and ErrSessionExpired returned; a caller whose
// own ctx ends first gets ctx.Err() and leaves the store alone.
func (c *Client) refresh(ctx context.Context) error {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		tokens, err := c.requestRefresh(rctx)
		if err != nil {
			c.log.Warn("token refresh failed", "error", err)
			if clearErr := c.store.Clear(); clearErr != nil {
				c.log.Error("clearing token store", "error", clearErr)
			}
			if c.onExpired != nil {
				c.onExpired()
			}
			return nil, err
		}
		if err := c.store.Set(tokens.AccessToken, tokens.RefreshToken); err != nil {
			return nil, fmt.Errorf("storing refreshed token: %w", err)
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w (%v)", ErrSessionExpired, res.Err)
		}
		return nil
	}
}

func (c *Client) requestRefresh(ctx context.Context) (*TokenResponse, error) {
	var body any
	if rt := c.store.RefreshToken(); rt != "" {
		body = map[string]string{"refresh_token": rt}
	}
	build, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	rc := buildConfig([]RequestOption{WithoutAuth()})
	resp, err := c.send(ctx, http.MethodPost, c.authURL+"/auth/refresh", build, rc, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromResponse(resp)
	}
	var tokens TokenResponse
	if err := decodeResponse(resp, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("refresh response carried no access token")
	}
	return &tokens, nil
}

// decodeResponse consumes and closes resp.Body.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func withQuery(rawURL string, q url.Values) (string, error) {
	if len(q) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String(), nil
}
