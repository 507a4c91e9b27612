package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/shopsync/internal/domain"
)

const (
	defaultUserAgent = "shopsync/0.1"
	// DefaultTimeout bounds each request when no timeout is configured.
	DefaultTimeout = 5 * time.Second

	productsPath   = "/api/products"
	categoriesPath = "/api/categories"
)

// Client fetches the catalog from the storefront HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient builds a Client for baseURL, e.g. "https://shop.example.com".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c, nil
}

// FetchCatalog retrieves every product.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.fetchList(ctx, productsPath, "products", &products); err != nil {
		return nil, err
	}
	if err := validateAll(products); err != nil {
		return nil, &UnavailableError{Resource: "products", Err: err}
	}
	return products, nil
}

// FetchCategories retrieves every category.
func (c *Client) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := c.fetchList(ctx, categoriesPath, "categories", &categories); err != nil {
		return nil, err
	}
	if err := validateAll(categories); err != nil {
		return nil, &UnavailableError{Resource: "categories", Err: err}
	}
	return categories, nil
}

// fetchList GETs path and decodes either a bare JSON array or an object
// holding the array under key, such as {"products": [...]}.
func (c *Client) fetchList(ctx context.Context, path, key string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return &UnavailableError{Resource: key, Err: err}
	}
	if err := decodeList(body, key, dest); err != nil {
		return &UnavailableError{Resource: key, Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "path", path, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("remote request",
		"path", path,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeList(body []byte, key string, dest any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty response body")
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	list, ok := envelope[key]
	if !ok {
		return fmt.Errorf("decode response: missing %q", key)
	}
	if err := json.Unmarshal(list, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func validateAll[T any](items []T) error {
	for i, item := range items {
		if err := domain.Validate(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("remote base url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
