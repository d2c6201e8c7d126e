package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mdepdi/be-fast-cablo/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var (
	ErrNoRouteFound       = errors.New("no route found")
	ErrServiceUnavailable = errors.New("routing service unavailable")
)

const (
	PROFILE = "driving-car"

	maxErrorBody = 512
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxInFlight   int64
	RatePerSecond float64
	Burst         int
	CacheSize     int
}

func ConfigFrom(cfg util.ORSConfig) Config {
	return Config{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		MaxInFlight:   cfg.MaxInFlight,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		CacheSize:     cfg.CacheSize,
	}
}

// Client talks to an openrouteservice compatible routing service. The service is treated as
// a rate limited resource: a weighted semaphore bounds in-flight requests and a token bucket
// bounds the request rate. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	inFlight   *semaphore.Weighted
	limiter    *rate.Limiter
	cache      *lru.Cache[directionsKey, Route]
	logger     *zap.Logger

	requests  atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, util.WrapErrorf(nil, util.ErrBadParamInput, "routing service base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		inFlight:   semaphore.NewWeighted(cfg.MaxInFlight),
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[directionsKey, Route](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

type Stats struct {
	Requests  int64
	Failures  int64
	CacheHits int64
}

func (c *Client) Stats() Stats {
	return Stats{
		Requests:  c.requests.Load(),
		Failures:  c.failures.Load(),
		CacheHits: c.cacheHits.Load(),
	}
}

// post sends body as JSON and decodes a 2xx response into out. Transport errors, 5xx and 429
// map to ErrServiceUnavailable, any other non-2xx to ErrNoRouteFound.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		return util.WrapErrorf(err, ErrServiceUnavailable, "acquire request slot")
	}
	defer c.inFlight.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return util.WrapErrorf(err, ErrServiceUnavailable, "rate limiter")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return util.WrapErrorf(err, ErrServiceUnavailable, "build request %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/geo+json")

	c.requests.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Add(1)
		return util.WrapErrorf(err, ErrServiceUnavailable, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.failures.Add(1)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		code := ErrNoRouteFound
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = ErrServiceUnavailable
		}
		return util.WrapErrorf(nil, code, "POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.failures.Add(1)
		return util.WrapErrorf(err, ErrServiceUnavailable, "decode response of %s", path)
	}
	return nil
}
