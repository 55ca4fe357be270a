// Package httpclient is the interceptor pipeline every outbound
// request flows through: tenant and CSRF header injection on the way
// out, single-flight refresh-and-retry on authentication failure on
// the way back.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/maintboard/maintboard-go/internal/config"
	"github.com/maintboard/maintboard-go/internal/metrics"
	"github.com/maintboard/maintboard-go/sessions"
	"github.com/maintboard/maintboard-go/storage"
	"github.com/maintboard/maintboard-go/tenants"
)

const (
	// TenantHeader carries the tenant schema name. It is attached
	// only when the request target has no tenant-specific subdomain.
	TenantHeader = "X-Tenant"
	// CSRFHeader echoes the CSRF cookie on state-mutating methods.
	CSRFHeader = "X-CSRFToken"

	// CSRFCookieName is the readable cookie the backend hands out for
	// CSRF double-submit. The session and refresh cookies are HttpOnly
	// and never touched here.
	CSRFCookieName = "csrftoken"

	// RefreshPath is the session refresh endpoint.
	RefreshPath = "/auth/token/refresh/"

	authPathPrefix = "/auth/"
)

// Client issues tenant-scoped, cookie-authenticated requests.
type Client struct {
	httpClient *http.Client
	cfg        config.Config
	resolver   *tenants.Resolver
	sessions   *sessions.Store
	storage    *storage.Store

	baseOverride string

	group           singleflight.Group
	refreshDisabled atomic.Bool
	throttle        *logThrottle
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying transport. The replacement
// should carry a cookie jar; session auth is cookie-based.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithBaseURL pins the base URL, bypassing profile resolution. Used
// by tests and the CLI against explicit deployments.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseOverride = strings.TrimRight(base, "/") }
}

// WithMetrics attaches shared collectors.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClock replaces the throttle clock (tests).
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.throttle = newLogThrottle(clock, defaultThrottleWindow) }
}

// WithLogger replaces the package logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client with a fresh cookie jar and the configured
// fixed per-request timeout.
func New(cfg config.Config, resolver *tenants.Resolver, sessionStore *sessions.Store, store *storage.Store, opts ...ClientOption) (*Client, error) {
	if resolver == nil {
		return nil, errors.New("[httpclient.New] tenant resolver is required")
	}
	if sessionStore == nil {
		return nil, errors.New("[httpclient.New] session store is required")
	}
	if store == nil {
		return nil, errors.New("[httpclient.New] scoped storage is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[httpclient.New] cookie jar")
	}

	c := &Client{
		httpClient: &http.Client{Jar: jar, Timeout: cfg.GetRequestTimeout()},
		cfg:        cfg,
		resolver:   resolver,
		sessions:   sessionStore,
		storage:    store,
		throttle:   newLogThrottle(clockwork.NewRealClock(), defaultThrottleWindow),
		metrics:    metrics.NewNop(),
		logger:     log.With().Str("component", "httpclient").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do issues one request through the full pipeline.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, method, path, body, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, retried bool) error {
	tenant := c.resolver.Config()

	target, err := c.requestURL(tenant, path)
	if err != nil {
		return err
	}

	req, err := c.buildRequest(ctx, method, target, tenant, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transient transport failure: surfaced unchanged, no
		// session mutation.
		return errors.Wrapf(err, "[Client.Do] %s %s", method, path)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "[Client.Do] reading %s %s response", method, path)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(payload) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				return errors.Wrapf(err, "[Client.Do] decoding %s %s response", method, path)
			}
		}
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        target.String(),
		Body:       string(payload),
	}

	if isAuthFailure(resp.StatusCode) {
		return c.recover(ctx, method, path, body, out, retried, apiErr)
	}

	c.logAPIError(apiErr)
	return apiErr
}

// requestURL resolves the base URL for the tenant and appends the
// request path, preserving trailing slashes.
func (c *Client) requestURL(tenant tenants.Tenant, path string) (*url.URL, error) {
	base := c.baseOverride
	if base == "" {
		base = c.profileBase(tenant)
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.requestURL] parsing base %q", base)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed, nil
}

// profileBase resolves the deployment origin. The DEV profile always
// targets the fixed local base so cookies stay same-origin behind the
// dev proxy; production resolves a tenant-specific origin.
func (c *Client) profileBase(tenant tenants.Tenant) string {
	if c.cfg.GetEnv() == "DEV" {
		return c.cfg.GetDevBaseURL()
	}
	if override := c.cfg.GetBaseURLOverride(); override != "" {
		return override
	}
	if pattern := c.cfg.GetTenantURLPattern(); pattern != "" {
		return fmt.Sprintf(pattern, tenant.Slug)
	}
	return "https://" + tenant.Slug + "." + c.cfg.GetAPIDomain()
}

func (c *Client) buildRequest(ctx context.Context, method string, target *url.URL, tenant tenants.Tenant, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.buildRequest] encoding body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.buildRequest] building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Explicit-carry rule: the tenant header travels only when the
	// target host does not already identify the tenant.
	if !hostCarriesTenant(target.Host, tenant.Slug) {
		req.Header.Set(TenantHeader, tenant.SchemaName)
	}

	if isMutating(method) {
		if token := c.csrfToken(target); token != "" {
			req.Header.Set(CSRFHeader, token)
		}
	}
	return req, nil
}

// csrfToken reads the CSRF cookie the backend set for this origin.
func (c *Client) csrfToken(target *url.URL) string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(target) {
		if cookie.Name == CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) logAPIError(apiErr *APIError) {
	if !c.throttle.allow(strconv.Itoa(apiErr.StatusCode) + " " + apiErr.URL) {
		c.metrics.ThrottledLogs.Inc()
		return
	}
	c.logger.Warn().
		Int("status", apiErr.StatusCode).
		Str("method", apiErr.Method).
		Str("url", apiErr.URL).
		Msg("request failed")
}

func hostCarriesTenant(host, slug string) bool {
	if slug == "" {
		return false
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.HasPrefix(strings.ToLower(host), strings.ToLower(slug)+".")
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isAuthPath(path string) bool {
	return strings.Contains(path, authPathPrefix)
}
