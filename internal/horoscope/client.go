// Package horoscope fetches readings from the public horoscope API.
package horoscope

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://horoscope-app-api.vercel.app/api/v1/get-horoscope"

const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"

	DefaultDay = "TODAY"
)

var Timeframes = []string{Daily, Weekly, Monthly}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    uint64
	// initialInterval seeds the exponential backoff between attempts.
	initialInterval time.Duration
}

func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: timeout},
		retries:         uint64(retries),
		initialInterval: 500 * time.Millisecond,
	}
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("horoscope API returned status %d", e.Code)
	}
	return fmt.Sprintf("horoscope API returned status %d: %s", e.Code, e.Body)
}

// Get returns the decoded API response, or an {"error": ...} object when the
// timeframe is invalid or the call fails. It never returns a Go error so the
// outcome can be handed back to the model as-is.
func (c *Client) Get(ctx context.Context, timeframe, sign, day string) any {
	log := zerolog.Ctx(ctx)

	if !validTimeframe(timeframe) {
		return errorResult("invalid timeframe %q, use daily, weekly or monthly", timeframe)
	}

	params := url.Values{}
	params.Set("sign", sign)
	if timeframe == Daily {
		if day == "" {
			day = DefaultDay
		}
		params.Set("day", day)
	}
	endpoint := c.baseURL + "/" + timeframe + "?" + params.Encode()

	var body []byte
	operation := func() error {
		var err error
		body, err = c.fetch(ctx, endpoint)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Str("timeframe", timeframe).Msg("Horoscope request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, retry, notify); err != nil {
		log.Error().Err(err).Str("timeframe", timeframe).Str("sign", sign).Msg("Horoscope request failed")
		return errorResult("horoscope request failed: %v", err)
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		log.Error().Err(err).Msg("Horoscope response is not valid JSON")
		return errorResult("invalid horoscope response: %v", err)
	}
	return result
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}
	return body, nil
}

func validTimeframe(timeframe string) bool {
	for _, tf := range Timeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}

func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}
