// Package geocoding resolves free-form addresses through a Google compatible
// geocoding endpoint.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/md-rashed-zaman/staffops/libs/metrics"
)

type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceID          string  `json:"place_id,omitempty"`
}

type Config struct {
	BaseURL  string
	APIKey   string
	QPS      float64
	Burst    int
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	cache    Cache
	cacheTTL time.Duration
	timeout  time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

// NewClient builds a client. cache may be nil.
func NewClient(cfg Config, cache Cache, logger *slog.Logger) *Client {
	if cfg.QPS <= 0 {
		cfg.QPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst),
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// ValidateAddress reports whether the address resolves to at least one place.
func (c *Client) ValidateAddress(ctx context.Context, address string) (bool, error) {
	res, err := c.Geocode(ctx, address)
	if err != nil {
		return false, err
	}
	return res != nil, nil
}

// Geocode returns the best match for address, or nil when there is none.
// Concurrent lookups of the same normalized address share one upstream call.
// The shared call is detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	key := normalize(address)
	if key == "" {
		return nil, nil
	}

	if c.cache != nil {
		res, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("geocode cache read failed", "err", err)
		} else if ok {
			metrics.RecordGeocodeLookup("cache_hit")
			return res, nil
		}
	}
	metrics.RecordGeocodeLookup("cache_miss")

	ch := c.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		res, err := c.fetch(shared, address)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(shared, key, res, c.cacheTTL); err != nil {
				c.logger.Warn("geocode cache write failed", "err", err)
			}
		}
		return res, nil
	})
	select {
	case <-ctx.Done():
		metrics.RecordGeocodeLookup("error")
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			metrics.RecordGeocodeLookup("error")
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) fetch(ctx context.Context, address string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("address", address)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocode status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return nil, nil
	}
	top := body.Results[0]
	return &Result{
		Lat:              top.Geometry.Location.Lat,
		Lng:              top.Geometry.Location.Lng,
		FormattedAddress: top.FormattedAddress,
		PlaceID:          top.PlaceID,
	}, nil
}

// normalize folds compatibility characters, case and whitespace so that
// equivalent spellings share cache entries.
func normalize(address string) string {
	s := norm.NFKC.String(address)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
