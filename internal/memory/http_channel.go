package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/FeanorKingofNoldor/moneygoesbrrbrrbrr/internal/config"
)

// HTTPChannel delivers lessons to one memory collection over the reasoning
// service's REST API. Retries on transient failures, rate limited across
// all channels sharing the same limiter.
type HTTPChannel struct {
	role    string
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewHTTPChannels builds one HTTP channel per configured role, all sharing
// a single rate limiter against the service.
func NewHTTPChannels(cfg *config.MemoryConfig, logger *logrus.Logger) []Channel {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	client.RetryMax = cfg.RetryAttempts
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.CheckRetry = retryPolicy()
	client.Logger = nil

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)

	roles := cfg.Channels
	if len(roles) == 0 {
		roles = AllChannels()
	}

	channels := make([]Channel, 0, len(roles))
	for _, role := range roles {
		channels = append(channels, &HTTPChannel{
			role:    role,
			baseURL: cfg.ServiceURL,
			apiKey:  cfg.ServiceKey,
			client:  client,
			limiter: limiter,
			logger:  logger,
		})
	}
	return channels
}

// Name returns the channel role identifier.
func (c *HTTPChannel) Name() string { return c.role }

type addSituationsRequest struct {
	Collection string   `json:"collection"`
	Lessons    []Lesson `json:"lessons"`
}

// AddSituations posts the lesson batch to the service's memory endpoint.
func (c *HTTPChannel) AddSituations(ctx context.Context, lessons []Lesson) error {
	if len(lessons) == 0 {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	payload, err := json.Marshal(addSituationsRequest{
		Collection: c.role,
		Lessons:    lessons,
	})
	if err != nil {
		return fmt.Errorf("failed to encode lessons for %s: %w", c.role, err)
	}

	url := fmt.Sprintf("%s/memory/%s/situations", c.baseURL, c.role)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("memory delivery to %s failed: %w", c.role, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("memory delivery to %s failed: status %d", c.role, resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"channel": c.role,
		"lessons": len(lessons),
	}).Debug("Delivered lessons to memory channel")

	return nil
}

// retryPolicy retries on network errors, 429 and 5xx; never on other 4xx.
func retryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return true, nil
		}
		return false, nil
	}
}
