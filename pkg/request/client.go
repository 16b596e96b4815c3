package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"wikimap/pkg/cache"
	"wikimap/pkg/config"
	"wikimap/pkg/tracker"
	"wikimap/pkg/version"
)

var defaultUserAgent = "wikimap/" + version.Version + " (Shanghai heritage map)"

// ErrRetriesExhausted is returned when every attempt hit a retryable status.
var ErrRetriesExhausted = errors.New("request: retries exhausted")

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	Retries   int
	Timeout   time.Duration
	UserAgent string
	BaseDelay time.Duration // first retry delay, doubled per attempt
	MaxDelay  time.Duration // cap of the per-provider penalty
	Gap       time.Duration // pause between two requests to the same provider
}

func OptionsFromConfig(cfg *config.RequestConfig) Options {
	return Options{
		Retries:   cfg.Retries,
		Timeout:   cfg.Timeout.Std(),
		UserAgent: cfg.UserAgent,
		BaseDelay: cfg.Backoff.BaseDelay.Std(),
		MaxDelay:  cfg.Backoff.MaxDelay.Std(),
		Gap:       100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	return o
}

// Client runs GET requests one at a time per provider, with an optional
// response cache in front and usage counted in the tracker.
type Client struct {
	http    *http.Client
	cache   cache.Cacher
	tracker *tracker.Tracker
	opts    Options

	mu    sync.Mutex
	lanes map[string]*lane
}

type job struct {
	req     *http.Request
	headers map[string]string
	key     string
	done    chan result
}

type result struct {
	body []byte
	err  error
}

func New(c cache.Cacher, t *tracker.Tracker, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		cache:   c,
		tracker: t,
		opts:    opts,
		lanes:   make(map[string]*lane),
	}
}

func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Get fetches u. A non-empty key consults and fills the response cache.
func (c *Client) Get(ctx context.Context, u, key string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, key)
}

func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, key string) ([]byte, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := providerOf(parsed.Host)

	if key != "" {
		if body, ok := c.cache.GetCache(ctx, key); ok {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache hit", "provider", provider, "key", key)
			return body, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	j := job{req: req, headers: headers, key: key, done: make(chan result, 1)}
	select {
	case c.lane(provider).jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.done:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// providerOf folds all language editions of a wiki family into one lane.
func providerOf(host string) string {
	for _, family := range []string{"wikipedia", "wikimedia"} {
		domain := family + ".org"
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return family
		}
	}
	return host
}

func (c *Client) lane(provider string) *lane {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lanes[provider]
	if !ok {
		l = newLane(provider)
		c.lanes[provider] = l
		go c.drain(l)
	}
	return l
}

func (c *Client) drain(l *lane) {
	for j := range l.jobs {
		c.serve(l, j)
		if c.opts.Gap > 0 {
			time.Sleep(c.opts.Gap)
		}
	}
}

func (c *Client) serve(l *lane, j job) {
	ctx := j.req.Context()
	if err := l.hold(ctx); err != nil {
		slog.Warn("Request dropped while provider is penalized", "provider", l.name, "error", err)
		j.done <- result{err: err}
		return
	}

	for k, v := range j.headers {
		j.req.Header.Set(k, v)
	}
	if j.req.Header.Get("User-Agent") == "" {
		j.req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	body, err := c.do(j.req)
	switch {
	case err == nil:
		c.tracker.TrackAPISuccess(l.name)
		l.succeed()
		if j.key != "" {
			if err := c.cache.SetCache(context.Background(), j.key, body); err != nil {
				slog.Error("Failed to cache response", "key", j.key, "error", err)
			}
		}
	case ctx.Err() == nil:
		c.tracker.TrackAPIFailure(l.name)
		l.fail(c.opts.BaseDelay, c.opts.MaxDelay)
	}
	j.done <- result{body: body, err: err}
}

// StatusError is returned for HTTP error responses that are not retried.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d", e.Code)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// do sends req up to Retries times, backing off after transport errors and
// retryable statuses.
func (c *Client) do(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	delay := c.opts.BaseDelay

	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			}
			delay *= 2
		}

		slog.Debug("Network request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt)
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Request failed", "url", req.URL.Redacted(), "attempt", attempt, "error", err)
			continue
		}

		if retryable(resp.StatusCode) {
			resp.Body.Close()
			slog.Warn("Provider pushed back", "status", resp.StatusCode, "url", req.URL.Redacted(), "attempt", attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}
	return nil, ErrRetriesExhausted
}
