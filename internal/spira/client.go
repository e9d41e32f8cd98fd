// Package spira is a client for the local incident tracker's JSON
// import/export API. It provides the tracker.LocalSystem used by the sync
// engine and a mapping.Store backed by the tracker's own data-mapping tables.
//
// The API is session based: Authenticate stores a session cookie and
// ConnectToProject binds a session to one project. Each project session gets
// its own cookie jar so projects can be synced concurrently.
package spira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 20 * time.Minute

// apiPrefix is the path of the import/export API under the web root.
const apiPrefix = "/Services/v5_0/ImportExport.svc"

// ErrNotAuthenticated is returned when a project is opened before Authenticate.
var ErrNotAuthenticated = errors.New("spira: authenticate before connecting to a project")

// APIError is returned for non-success HTTP responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spira: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// errorBody is the JSON error document the API returns with failures.
type errorBody struct {
	Message string `json:"message"`
}

// Client is the entry point to the local system. It is safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	transport  http.RoundTripper
	httpClient *http.Client
	log        zerolog.Logger
	maxElapsed time.Duration

	mu       sync.RWMutex
	login    string
	password string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTransport sets the round tripper shared by every session.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryLimit bounds how long read requests are retried.
func WithRetryLimit(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// NewClient creates a client for the web root at baseURL (e.g. "https://spira.example.com/SpiraTest").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    DefaultTimeout,
		log:        zerolog.Nop(),
		maxElapsed: 30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	c.httpClient = c.newSession()
	return c
}

// newSession returns an HTTP client with its own cookie jar.
func (c *Client) newSession() *http.Client {
	jar, _ := cookiejar.New(nil) // only fails with a non-nil options value
	return &http.Client{Jar: jar, Timeout: c.timeout, Transport: c.transport}
}

// Authenticate opens a session. Credentials are kept for project sessions.
func (c *Client) Authenticate(ctx context.Context, login, password string) (bool, error) {
	ok, err := authenticate(ctx, c.conn(c.httpClient), login, password)
	if err != nil || !ok {
		return ok, err
	}
	c.mu.Lock()
	c.login, c.password = login, password
	c.mu.Unlock()
	return true, nil
}

func authenticate(ctx context.Context, cn *conn, login, password string) (bool, error) {
	var resp struct {
		Authenticated bool `json:"authenticated"`
	}
	body := map[string]string{"login": login, "password": password}
	if err := cn.send(ctx, http.MethodPost, "/authenticate", body, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return false, nil
		}
		return false, err
	}
	return resp.Authenticated, nil
}

// ProductName returns the display name of the installation.
func (c *Client) ProductName(ctx context.Context) (string, error) {
	return c.systemValue(ctx, "/system/product-name")
}

// BaseURL returns the web server URL incident links are built on.
func (c *Client) BaseURL(ctx context.Context) (string, error) {
	v, err := c.systemValue(ctx, "/system/web-server-url")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(v, "/"), nil
}

func (c *Client) systemValue(ctx context.Context, path string) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	if err := c.conn(c.httpClient).get(ctx, path, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

// conn pairs a session with the client settings for request helpers.
type conn struct {
	client *Client
	http   *http.Client
}

func (c *Client) conn(hc *http.Client) *conn {
	return &conn{client: c, http: hc}
}

// get performs a GET, retrying transient failures.
func (cn *conn) get(ctx context.Context, path string, out interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = cn.client.maxElapsed
	return backoff.RetryNotify(func() error {
		err := cn.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		cn.client.log.Debug().Err(err).Str("path", path).Dur("wait", wait).Msg("Retrying request")
	})
}

// send performs a single non-idempotent request.
func (cn *conn) send(ctx context.Context, method, path string, body, out interface{}) error {
	return cn.do(ctx, method, path, body, out)
}

func (cn *conn) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("spira: marshal %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, cn.client.baseURL+apiPrefix+path, reqBody)
	if err != nil {
		return fmt.Errorf("spira: %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	cn.client.log.Trace().Str("method", method).Str("path", path).Msg("Local API request")
	resp, err := cn.http.Do(req)
	if err != nil {
		return fmt.Errorf("spira: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Message != "" {
			apiErr.Message = eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("spira: %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}
