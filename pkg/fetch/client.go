// Package fetch retrieves model and environment assets for plinth.
//
// A [Client] accepts http(s) URLs, file:// URLs and plain filesystem paths.
// Remote fetches are retried with exponential backoff, cached on disk when a
// [Cache] is configured, and concurrent requests for the same URL share one
// download.
//
//	c := fetch.New(fetch.WithLogger(log), fetch.WithCache(cache))
//	data, err := c.Fetch(ctx, "https://cdn.example.com/shelf.glb", func(loaded, total int64) {
//	    // update a progress bar
//	})
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	perrors "github.com/taigrr/plinth/pkg/errors"
)

// Progress reports bytes received so far. total is -1 when the size is
// unknown.
type Progress func(loaded, total int64)

// Client fetches assets. The zero value is not usable; call [New].
type Client struct {
	http     *http.Client
	cache    *Cache
	log      *zap.Logger
	attempts int
	delay    time.Duration
	group    singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCache enables the on-disk cache for http(s) fetches.
func WithCache(cache *Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRetry sets the attempt count and the initial backoff delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.delay = delay
	}
}

// New creates a Client with 3 attempts and a 500ms initial delay.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 2 * time.Minute},
		log:      zap.NewNop(),
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the bytes at rawURL. Concurrent calls for the same URL share
// a single download and receive the same slice, which must not be modified.
// Only the caller that started the download receives progress callbacks.
//
// Errors carry the NOT_FOUND or FETCH_FAILED codes. Cancellation returns
// ctx.Err().
func (c *Client) Fetch(ctx context.Context, rawURL string, progress Progress) ([]byte, error) {
	if progress == nil {
		progress = func(int64, int64) {}
	}
	ch := c.group.DoChan(rawURL, func() (any, error) {
		return c.fetch(ctx, rawURL, progress)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The shared download belonged to a caller that gave up.
			if res.Shared && ctx.Err() == nil && errors.Is(res.Err, context.Canceled) {
				return c.fetch(ctx, rawURL, progress)
			}
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetch(ctx context.Context, rawURL string, progress Progress) ([]byte, error) {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return c.fetchHTTP(ctx, rawURL, progress)
	case strings.HasPrefix(rawURL, "file://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeFetchFailed, err, "parse %s", rawURL)
		}
		return c.readFile(u.Path, progress)
	default:
		return c.readFile(rawURL, progress)
	}
}

func (c *Client) readFile(path string, progress Progress) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, perrors.Wrap(perrors.ErrCodeNotFound, err, "%s", path)
		}
		return nil, perrors.Wrap(perrors.ErrCodeFetchFailed, err, "read %s", path)
	}
	n := int64(len(data))
	progress(n, n)
	return data, nil
}

func (c *Client) fetchHTTP(ctx context.Context, rawURL string, progress Progress) ([]byte, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(rawURL)
		switch {
		case ok:
			c.log.Debug("asset cache hit", zap.String("url", rawURL))
			n := int64(len(data))
			progress(n, n)
			return data, nil
		case err != nil && !errors.Is(err, ErrExpired):
			c.log.Warn("asset cache read failed", zap.String("url", rawURL), zap.Error(err))
		}
	}

	start := time.Now()
	var data []byte
	err := Retry(ctx, c.attempts, c.delay, func() error {
		var err error
		data, err = c.get(ctx, rawURL, progress)
		if err != nil && isRetryable(err) {
			c.log.Debug("asset fetch retry", zap.String("url", rawURL), zap.Error(err))
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if perrors.Is(err, perrors.ErrCodeNotFound) {
			return nil, err
		}
		return nil, perrors.Wrap(perrors.ErrCodeFetchFailed, err, "fetch %s", rawURL)
	}

	c.log.Debug("asset fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	if c.cache != nil {
		if err := c.cache.Set(rawURL, data); err != nil {
			c.log.Warn("asset cache write failed", zap.String("url", rawURL), zap.Error(err))
		}
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, rawURL string, progress Progress) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, perrors.New(perrors.ErrCodeNotFound, "%s: %s", rawURL, resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, &RetryableError{Err: fmt.Errorf("%s: %s", rawURL, resp.Status)}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: %s", rawURL, resp.Status)
	}

	pr := &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	data, err := io.ReadAll(pr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Err: err}
	}
	if pr.total < 0 {
		progress(pr.n, pr.n)
	}
	return data, nil
}

type progressReader struct {
	r     io.Reader
	n     int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		p.fn(p.n, p.total)
	}
	return n, err
}
