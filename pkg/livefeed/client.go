package livefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/travigo/departureboard/pkg/merge"
	"github.com/travigo/departureboard/pkg/stats"
	"github.com/travigo/departureboard/pkg/util"
)

const (
	DefaultTTL         = 30 * time.Second
	DefaultTimeout     = 10 * time.Second
	DefaultAPIKeyParam = "api_key"
	DefaultRetries     = 1

	userAgent = "travigo-departureboard"
)

type Config struct {
	BaseURL     string
	APIKey      string
	APIKeyParam string

	TTL     time.Duration
	Timeout time.Duration
	// Zero means DefaultRetries, negative disables retrying
	Retries int

	VehicleMaxAge time.Duration
	CallMaxAge    time.Duration
	Location      *time.Location
	Normaliser    *merge.Normaliser

	HTTPClient   *http.Client
	PayloadCache PayloadCache
	Clock        func() time.Time
}

// Client fetches and caches the live feed. Fetches for the same endpoint
// are shared between concurrent callers and a failed refresh never throws
// away the last snapshot.
type Client struct {
	config   Config
	endpoint string
	redacted string

	group singleflight.Group

	mutex    sync.Mutex
	cached   *FeedSnapshot
	cachedAt time.Time
}

func NewClient(config Config) *Client {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retries == 0 {
		config.Retries = DefaultRetries
	} else if config.Retries < 0 {
		config.Retries = 0
	}
	if config.APIKeyParam == "" {
		config.APIKeyParam = DefaultAPIKeyParam
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Normaliser == nil {
		config.Normaliser = merge.NewNormaliser(merge.DefaultLegacyPrefixes)
	}

	client := &Client{config: config}
	if client.Configured() {
		client.endpoint = buildEndpoint(config.BaseURL, config.APIKeyParam, config.APIKey)
		client.redacted = buildEndpoint(config.BaseURL, config.APIKeyParam, "REDACTED")
	}

	return client
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.config.BaseURL) != "" && strings.TrimSpace(c.config.APIKey) != ""
}

func buildEndpoint(baseURL string, keyParam string, apiKey string) string {
	baseURL = strings.TrimSpace(baseURL)

	parsed, err := url.Parse(baseURL)
	if err != nil {
		separator := "?"
		if strings.Contains(baseURL, "?") {
			separator = "&"
		}
		return baseURL + separator + url.QueryEscape(keyParam) + "=" + url.QueryEscape(apiKey)
	}

	query := parsed.Query()
	query.Set(keyParam, strings.TrimSpace(apiKey))
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// Fetch returns the current live snapshot, from the cache while it is within
// its TTL. On failure the previous snapshot is returned marked stale along
// with an error wrapping ErrUnavailable.
func (c *Client) Fetch(ctx context.Context) (*FeedSnapshot, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if snapshot := c.fresh(); snapshot != nil {
		stats.FeedCacheHits.WithLabelValues("memory").Inc()
		return snapshot, nil
	}

	// The shared fetch outlives any one caller so a cancelled request can't
	// fail it for everyone else waiting on it
	detached := context.WithoutCancel(ctx)
	results := c.group.DoChan(c.endpoint, func() (any, error) {
		if snapshot := c.fresh(); snapshot != nil {
			return snapshot, nil
		}
		return c.refresh(detached)
	})

	select {
	case <-ctx.Done():
		if previous := c.previous(); previous != nil {
			return previous.stale(), fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case result := <-results:
		snapshot, _ := result.Val.(*FeedSnapshot)
		return snapshot, result.Err
	}
}

func (c *Client) fresh() *FeedSnapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cached != nil && c.config.Clock().Sub(c.cachedAt) < c.config.TTL {
		return c.cached
	}
	return nil
}

func (c *Client) previous() *FeedSnapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.cached
}

func (c *Client) store(snapshot *FeedSnapshot, at time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cached = snapshot
	c.cachedAt = at
}

func (c *Client) refresh(ctx context.Context) (*FeedSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	started := time.Now()
	now := c.config.Clock()

	payload, err := c.payload(ctx, now)
	var snapshot *FeedSnapshot
	if err == nil {
		snapshot, err = Parse(payload.ContentType, payload.Body, ParseOptions{
			Now:           now,
			VehicleMaxAge: c.config.VehicleMaxAge,
			CallMaxAge:    c.config.CallMaxAge,
			Location:      c.config.Location,
			Normaliser:    c.config.Normaliser,
		})
	}

	if err != nil {
		stats.ObserveFetch("failed", started)
		log.Error().Err(err).Msg("Failed to refresh live feed")

		if previous := c.previous(); previous != nil {
			return previous.stale(), fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	stats.ObserveFetch("success", started)
	stats.FeedRecords.WithLabelValues(string(RecordKindVehicle)).Set(float64(snapshot.count(RecordKindVehicle)))
	stats.FeedRecords.WithLabelValues(string(RecordKindCall)).Set(float64(snapshot.count(RecordKindCall)))

	log.Info().
		Str("shape", string(snapshot.Shape)).
		Int("records", len(snapshot.Records)).
		Int("malformed", snapshot.Malformed).
		Msg("Refreshed live feed")

	c.store(snapshot, now)

	return snapshot, nil
}

// payload prefers a shared cached response over going upstream
func (c *Client) payload(ctx context.Context, now time.Time) (*Payload, error) {
	if c.config.PayloadCache != nil {
		payload, err := c.config.PayloadCache.Get(ctx, c.endpoint)
		if err == nil && payload != nil && now.Sub(payload.FetchedAt) < c.config.TTL {
			stats.FeedCacheHits.WithLabelValues("shared").Inc()
			return payload, nil
		}
	}

	payload, err := c.download(ctx, now)
	if err != nil {
		return nil, err
	}

	if c.config.PayloadCache != nil {
		if err := c.config.PayloadCache.Set(ctx, c.endpoint, payload); err != nil {
			log.Warn().Err(err).Msg("Failed to share live feed payload")
		}
	}

	return payload, nil
}

func (c *Client) download(ctx context.Context, now time.Time) (*Payload, error) {
	var payload *Payload

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/xml, application/json, application/x-protobuf")

		resp, err := c.config.HTTPClient.Do(req)
		if err != nil {
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				urlErr.URL = c.redacted
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("upstream returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			// Providers explain rejected keys in the body
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if message := util.TrimString(strings.TrimSpace(string(detail)), 200); message != "" {
				return backoff.Permanent(fmt.Errorf("upstream returned %s: %s", resp.Status, message))
			}
			return backoff.Permanent(fmt.Errorf("upstream returned %s", resp.Status))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		payload = &Payload{
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
			FetchedAt:   now,
		}
		return nil
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = 250 * time.Millisecond

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(retryBackoff, uint64(c.config.Retries)), ctx),
		func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Msg("Retrying live feed fetch")
		},
	)
	if err != nil {
		return nil, err
	}

	return payload, nil
}
