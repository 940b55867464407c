// Package fetch retrieves host status snapshots from the monitor data endpoint.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kylerisse/hostboard/pkg/hoststatus"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the data endpoint of a locally running monitor service.
const DefaultEndpoint = "http://127.0.0.1:5000/api/monitor/data"

// ErrLoadFailed matches every error Fetch returns via errors.Is. Network
// failures, HTTP failures and malformed bodies are not distinguished further.
var ErrLoadFailed = errors.New("load failed")

// LoadError is the error returned by Fetch. Its message is the human-readable
// text shown in the widget's error row.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string { return e.Message }

func (e *LoadError) Unwrap() error { return e.Err }

// Is reports ErrLoadFailed as a match so callers need not type-assert.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }

func loadFailed(cause error, message string) error {
	return &LoadError{Message: message, Err: cause}
}

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Dialer matches net.Dialer.DialContext and resolve.Resolver.DialContext.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Client fetches the host list from a single endpoint.
type Client struct {
	endpoint  string
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	dial      Dialer
	client    *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithTimeout sets a request timeout. Zero, the default, leaves requests
// bounded only by the caller's context and the network stack.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithLimiter throttles outgoing requests. Fetch waits for a token before
// each request and fails if the context ends first.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) error {
		c.limiter = l
		return nil
	}
}

// WithDialer replaces the dial function of the default transport, e.g. with
// a resolve.Resolver so the endpoint host is looked up on a specific server.
func WithDialer(d Dialer) Option {
	return func(c *Client) error {
		c.dial = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithHTTPClient uses the given client as-is. Timeout and dialer options
// are ignored when this is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("fetch: endpoint must not be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("fetch: endpoint %q must be an http or https URL", endpoint)
	}

	c := &Client{
		endpoint:  endpoint,
		userAgent: "hostboard",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	if c.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.dial != nil {
			transport.DialContext = c.dial
		}
		c.client = &http.Client{
			Timeout:   c.timeout,
			Transport: transport,
		}
	}

	return c, nil
}

// Endpoint returns the URL this client polls.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch issues one GET to the endpoint and parses the body as a host list.
// A JSON null body yields an empty list.
func (c *Client) Fetch(ctx context.Context) ([]hoststatus.Record, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, loadFailed(err, err.Error())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, loadFailed(err, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, loadFailed(err, describeRequestError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, loadFailed(nil, statusMessage(resp))
	}

	records, err := hoststatus.Decode(resp.Body)
	if err != nil {
		return nil, loadFailed(err, err.Error())
	}
	return records, nil
}

func describeRequestError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	return err.Error()
}

// statusMessage prefers the data service's {"error": "..."} body over the
// bare status text.
func statusMessage(resp *http.Response) string {
	status := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return status
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return status
	}
	switch {
	case payload.Error != "":
		return status + ": " + payload.Error
	case payload.Message != "":
		return status + ": " + payload.Message
	}
	return status
}
