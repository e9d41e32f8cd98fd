// Package fogbugz is a client for the FogBugz XML API.
//
// The API is discovered through api.xml, which reports the supported version
// range and the relative URL every command is sent to. Commands are posted as
// form values and answer with a <response> document; a nested <error> element
// is returned as an *APIError.
package fogbugz

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// APIVersion is the API version this client speaks. A server is compatible when
// it reports version >= APIVersion and minversion <= APIVersion.
const APIVersion = 5

// DefaultTimeout matches the long request timeout large searches need.
const DefaultTimeout = 20 * time.Minute

// ErrNotLoggedOn is returned by commands that need a session token.
var ErrNotLoggedOn = errors.New("fogbugz: logon required before calling this command")

// APIError is returned when the server answers with an <error> element or a
// non-success HTTP status.
type APIError struct {
	Command    string
	Code       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("fogbugz: %s: error code %s: %s", e.Command, e.Code, e.Message)
	}
	return fmt.Sprintf("fogbugz: %s: HTTP %d: %s", e.Command, e.StatusCode, e.Message)
}

// Client is a FogBugz API session. It is safe for concurrent use once VerifyAPI
// and Logon have completed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	maxElapsed time.Duration

	keepAlive bool
	verifyTLS bool

	mu       sync.RWMutex
	endpoint string // relative command URL reported by api.xml
	token    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Keep-alive and TLS options are not
// applied to a caller-supplied client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithKeepAlive enables HTTP keep-alive connection reuse.
func WithKeepAlive(enabled bool) Option {
	return func(c *Client) { c.keepAlive = enabled }
}

// WithVerifyCertificate controls TLS certificate verification. Disable it for
// servers using self-signed certificates.
func WithVerifyCertificate(verify bool) Option {
	return func(c *Client) { c.verifyTLS = verify }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryLimit bounds how long idempotent commands are retried.
func WithRetryLimit(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// NewClient creates a client for the server at baseURL (e.g. "https://bugs.example.com").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zerolog.Nop(),
		maxElapsed: 30 * time.Second,
		verifyTLS:  true,
	}
	custom := false
	for _, o := range opts {
		before := c.httpClient
		o(c)
		if c.httpClient != before {
			custom = true
		}
	}
	if !custom {
		c.httpClient.Transport = c.transport()
	}
	return c
}

func (c *Client) transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DisableKeepAlives = !c.keepAlive
	if !c.verifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for self-signed servers
	}
	return t
}

// idempotent commands are safe to retry after a transport failure.
var idempotent = map[string]bool{
	"verifyapi":  true,
	"logon":      true,
	"logoff":     true,
	"search":     true,
	"viewFixFor": true,
}

// call sends one command and decodes the response document into out.
func (c *Client) call(ctx context.Context, cmd string, params url.Values, out interface{}) error {
	target, form, err := c.request(cmd, params)
	if err != nil {
		return err
	}

	attempt := func() error {
		err := c.do(ctx, cmd, target, form, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}
	if !idempotent[cmd] {
		return c.do(ctx, cmd, target, form, out)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	return backoff.RetryNotify(attempt, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		c.log.Debug().Err(err).Str("cmd", cmd).Dur("wait", wait).Msg("Retrying FogBugz request")
	})
}

// request resolves the command URL and form. api.xml is fetched with GET from
// the server root; every other command is posted to the discovered endpoint.
func (c *Client) request(cmd string, params url.Values) (string, url.Values, error) {
	if cmd == "verifyapi" {
		return c.baseURL + "/api.xml", nil, nil
	}
	c.mu.RLock()
	endpoint := c.endpoint
	c.mu.RUnlock()
	if endpoint == "" {
		return "", nil, fmt.Errorf("fogbugz: %s: call VerifyAPI first", cmd)
	}
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("cmd", cmd)
	return c.baseURL + "/" + endpoint, form, nil
}

func (c *Client) do(ctx context.Context, cmd, target string, form url.Values, out interface{}) error {
	var (
		req *http.Request
		err error
	)
	if form == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("fogbugz: %s: %w", cmd, err)
	}
	req.Header.Set("Accept", "text/xml")

	c.log.Trace().Str("cmd", cmd).Str("url", target).Msg("FogBugz request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fogbugz: %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fogbugz: %s: read: %w", cmd, err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Command: cmd, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("fogbugz: %s: unable to parse response: %w", cmd, err)
	}
	if env.Error != nil {
		code := env.Error.Code
		if code == "" {
			code = "(unknown)"
		}
		return &APIError{Command: cmd, Code: code, StatusCode: resp.StatusCode, Message: strings.TrimSpace(env.Error.Text)}
	}
	if out != nil {
		if err := xml.Unmarshal(body, out); err != nil {
			return fmt.Errorf("fogbugz: %s: decode: %w", cmd, err)
		}
	}
	return nil
}

// session returns the logon token, or ErrNotLoggedOn.
func (c *Client) session() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", ErrNotLoggedOn
	}
	return c.token, nil
}

// VerifyAPI reads api.xml and reports whether the server supports APIVersion.
// On success the command endpoint is remembered for later calls.
func (c *Client) VerifyAPI(ctx context.Context) (bool, error) {
	var resp apiInfo
	if err := c.call(ctx, "verifyapi", nil, &resp); err != nil {
		return false, err
	}
	if resp.Version < APIVersion || resp.MinVersion > APIVersion {
		c.log.Warn().Int("version", resp.Version).Int("minversion", resp.MinVersion).Msg("FogBugz API version not supported")
		return false, nil
	}
	endpoint := strings.TrimRight(strings.TrimLeft(resp.URL, "/"), "?&")
	if endpoint == "" {
		return false, fmt.Errorf("fogbugz: api.xml did not report a command url")
	}
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
	return true, nil
}

// Logon opens a session for the given account.
func (c *Client) Logon(ctx context.Context, email, password string) error {
	var resp logonResponse
	params := url.Values{"email": {email}, "password": {password}}
	if err := c.call(ctx, "logon", params, &resp); err != nil {
		return err
	}
	token := strings.TrimSpace(resp.Token)
	if token == "" {
		return &APIError{Command: "logon", Message: "no token returned"}
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// Logoff ends the session. It does nothing when no session is open.
func (c *Client) Logoff(ctx context.Context) error {
	token, err := c.session()
	if err != nil {
		return nil
	}
	if err := c.call(ctx, "logoff", url.Values{"token": {token}}, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}
