// Package catalog looks up app listings through an external catalog API.
package catalog

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/scout"
)

// Config controls catalog client behavior.
type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	SearchLimit int
}

// Client implements scout.Catalog against an HTTP JSON catalog service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a catalog client with sane defaults filled in.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse catalog base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type searchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type detailResult struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Developer string  `json:"developer"`
	Email     string  `json:"developerEmail"`
	Rating    float64 `json:"score"`
	Reviews   int     `json:"reviews"`
	Installs  string  `json:"installs"`
}

// Search lists catalog entries matching a term in a region.
func (c *Client) Search(ctx context.Context, term, region string) ([]scout.ItemRef, error) {
	endpoint := fmt.Sprintf("%s/search?%s", c.cfg.BaseURL, url.Values{
		"term":   {term},
		"region": {region},
		"num":    {fmt.Sprint(c.cfg.SearchLimit)},
	}.Encode())

	var results []searchResult
	if err := c.getJSON(ctx, endpoint, &results); err != nil {
		return nil, fmt.Errorf("catalog search %q/%s: %w", term, region, err)
	}

	refs := make([]scout.ItemRef, 0, len(results))
	for _, r := range results {
		if r.ID == "" {
			continue
		}
		refs = append(refs, scout.ItemRef{ID: r.ID, Title: r.Title})
	}
	return refs, nil
}

// Detail fetches the full listing for one catalog entry.
func (c *Client) Detail(ctx context.Context, id, region string) (scout.ItemDetail, error) {
	endpoint := fmt.Sprintf("%s/apps/%s?%s", c.cfg.BaseURL, url.PathEscape(id), url.Values{
		"region": {region},
	}.Encode())

	var d detailResult
	if err := c.getJSON(ctx, endpoint, &d); err != nil {
		return scout.ItemDetail{}, fmt.Errorf("catalog detail %q/%s: %w", id, region, err)
	}
	return scout.ItemDetail{
		ID:        d.ID,
		Title:     d.Title,
		Developer: d.Developer,
		Email:     d.Email,
		Rating:    d.Rating,
		Reviews:   d.Reviews,
		Installs:  d.Installs,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, c.backoff(attempt)); err != nil {
				return err
			}
			c.logger.Debug("retrying catalog request",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
			)
		}
		lastErr = c.doOnce(ctx, endpoint, out)
		if lastErr == nil {
			return nil
		}
		if !c.shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryableStatusError marks HTTP statuses worth another attempt.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("catalog returned status %d", e.status)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return &retryableStatusError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *retryableStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.BackoffBase) * math.Pow(2, float64(attempt))
	if delay > float64(c.cfg.BackoffMax) {
		delay = float64(c.cfg.BackoffMax)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
