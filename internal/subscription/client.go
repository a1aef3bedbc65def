package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// DefaultUserAgent is sent to upstream subscription servers. Many of them
// only return a proxy configuration to known client software.
const DefaultUserAgent = "clash-verge/v1.7.7"

var upstreamFetchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "paste_stash_upstream_fetches_total",
		Help: "Upstream subscription fetches by result",
	},
	[]string{"result"},
)

// ErrFeedTooLarge is returned when an upstream feed exceeds MaxBodySize.
var ErrFeedTooLarge = errors.New("feed too large")

// UpstreamError reports a failed upstream subscription fetch.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s fetch failed: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Feed is an upstream subscription response.
type Feed struct {
	Body   string
	Header http.Header
}

// ClientConfig configures the upstream Client.
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBodySize is the largest accepted feed body, zero means unbounded.
	MaxBodySize int64
	// BreakerFailures is the number of consecutive failures per host that
	// opens its breaker, zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client fetches upstream subscription feeds. It never retries; a failed
// fetch is returned to the caller as an *UpstreamError.
type Client struct {
	http *http.Client
	cfg  ClientConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a new upstream client
func NewClient(cfg ClientConfig) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// Fetch downloads the feed at rawURL with caching disabled.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Feed, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		upstreamFetchesTotal.WithLabelValues("invalid_url").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: errors.New("not an http(s) url")}
	}

	breaker := c.breaker(u.Host)
	if breaker == nil {
		return c.fetch(ctx, rawURL)
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, rawURL)
	})
	if err != nil {
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			return nil, err
		}
		// gobreaker.ErrOpenState or ErrTooManyRequests
		upstreamFetchesTotal.WithLabelValues("breaker_open").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: err}
	}
	return result.(*Feed), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		upstreamFetchesTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		upstreamFetchesTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		upstreamFetchesTotal.WithLabelValues("bad_status").Inc()
		return nil, &UpstreamError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if c.cfg.MaxBodySize > 0 {
		body = io.LimitReader(resp.Body, c.cfg.MaxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		upstreamFetchesTotal.WithLabelValues("error").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	// A cut feed is a broken config, refuse it instead
	if c.cfg.MaxBodySize > 0 && int64(len(data)) > c.cfg.MaxBodySize {
		upstreamFetchesTotal.WithLabelValues("too_large").Inc()
		return nil, &UpstreamError{URL: rawURL, Err: ErrFeedTooLarge}
	}

	upstreamFetchesTotal.WithLabelValues("ok").Inc()
	return &Feed{Body: string(data), Header: resp.Header}, nil
}

// breaker returns the circuit breaker for host, creating it on first use.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	if c.cfg.BreakerFailures == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}
	failures := c.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
	c.breakers[host] = cb
	return cb
}
