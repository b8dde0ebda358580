package posthog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

// Retry policy for both the query and capture paths.
const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 1.5
	maxRetries     = 10
)

// ErrRetryExhausted is returned when a call fails more than maxRetries
// times with transient statuses.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("posthog: status %d: %s", e.Status, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Config holds the connection settings for one PostHog project.
type Config struct {
	Host       string // e.g. https://app.posthog.com
	ProjectID  string
	APIKey     string // personal API key, query access
	CaptureKey string // project API key, capture access
	Timeout    time.Duration
}

// Client is the record source and event sink over the PostHog HTTP API.
// Reads page persons by a strictly increasing id cursor; writes go
// through the batch capture endpoint. Both paths share the same
// rate-limit-aware retry policy.
type Client struct {
	cfg  Config
	http *http.Client

	// OnRetry is invoked once per performed retry wait; the pipeline
	// wires it to the run's retry counter.
	OnRetry func()

	sleep func(time.Duration)
}

// NewClient creates a Client. Timeout defaults to 30s.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: timeout},
		sleep: time.Sleep,
	}
}

// FetchPage returns the page of persons with id greater than cursor,
// ordered by id. An empty slice signals end of data.
func (c *Client) FetchPage(ctx context.Context, cursor string, pageSize int) ([]models.Person, error) {
	query := personsQuery(cursor, pageSize)
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"kind":  "HogQLQuery",
			"query": query,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/api/projects/%s/query/", strings.TrimRight(c.cfg.Host, "/"), c.cfg.ProjectID)
	body, err := c.doWithRetry(ctx, url, payload, "Bearer "+c.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	var persons []models.Person
	for _, row := range gjson.GetBytes(body, "results").Array() {
		cols := row.Array()
		if len(cols) < 10 {
			continue
		}
		persons = append(persons, models.Person{
			ID:               cols[0].String(),
			DistinctID:       cols[1].String(),
			IsBot:            cols[2].Value(),
			IP:               cols[3].String(),
			UserAgent:        cols[4].String(),
			InitialIP:        cols[5].Value(),
			LatestIP:         cols[6].Value(),
			IsGoodBot:        cols[7].Value(),
			Datacenter:       cols[8].Value(),
			LatestNonProxyIP: cols[9].Value(),
		})
	}
	return persons, nil
}

// personsQuery builds the cursor-paginated HogQL statement. Cursor
// pagination on id keeps page cost flat over large person sets, which
// offset pagination does not.
func personsQuery(cursor string, pageSize int) string {
	var b strings.Builder
	b.WriteString("SELECT id, distinct_id, properties.is_bot, properties.$ip, properties.$useragent, ")
	b.WriteString("properties.initial_address, properties.latest_address, properties.is_good_bot, ")
	b.WriteString("properties.datacenter, properties.latest_nonproxy_address FROM persons")
	if cursor != "" {
		b.WriteString(" WHERE id > '")
		b.WriteString(strings.ReplaceAll(cursor, "'", ""))
		b.WriteString("'")
	}
	b.WriteString(" ORDER BY id ASC LIMIT ")
	b.WriteString(strconv.Itoa(pageSize))
	return b.String()
}

// SendBatch delivers events through the batch capture endpoint.
// Success or failure is per batch, not per event.
func (c *Client) SendBatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		props := map[string]any{"$set": ev.Set}
		if ev.Name == models.EventIdentify {
			props["$anon_distinct_id"] = ev.AnonDistinctID
		}
		batch = append(batch, map[string]any{
			"event":       ev.Name,
			"distinct_id": ev.DistinctID,
			"properties":  props,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"api_key": c.cfg.CaptureKey,
		"batch":   batch,
	})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	url := strings.TrimRight(c.cfg.Host, "/") + "/batch/"
	_, err = c.doWithRetry(ctx, url, payload, "")
	return err
}

// doWithRetry POSTs payload, retrying 429 and 5xx responses. A 429 with
// a Retry-After header waits the hinted delay and leaves the backoff
// untouched; everything else transient waits the current backoff and
// grows it by backoffFactor up to maxBackoff. After maxRetries waits the
// call fails terminally. Other 4xx statuses propagate immediately.
func (c *Client) doWithRetry(ctx context.Context, url string, payload []byte, auth string) ([]byte, error) {
	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		body, apiErr, err := c.post(ctx, url, payload, auth)
		if err != nil {
			return nil, err
		}
		if apiErr == nil {
			return body, nil
		}
		if !apiErr.Transient() {
			return nil, apiErr
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attempt, apiErr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if delay, hinted := retryAfter(apiErr); hinted {
			c.sleep(delay)
		} else {
			c.sleep(backoff)
			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if c.OnRetry != nil {
			c.OnRetry()
		}
	}
}

func (c *Client) post(ctx context.Context, url string, payload []byte, auth string) ([]byte, *statusError, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Failed round trips are treated like server errors: transient.
		return nil, &statusError{err: err}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &statusError{err: err}, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil, nil
	}

	return nil, &statusError{
		api:        &APIError{Status: resp.StatusCode, Body: truncate(string(body), 200)},
		retryAfter: resp.Header.Get("Retry-After"),
	}, nil
}

// statusError carries a failed attempt's outcome: either an API status
// or a transport-level error, which is always treated as transient.
type statusError struct {
	api        *APIError
	retryAfter string
	err        error
}

func (s *statusError) Transient() bool {
	if s.err != nil {
		return true
	}
	return s.api.Transient()
}

func (s *statusError) Error() string {
	if s.err != nil {
		return s.err.Error()
	}
	return s.api.Error()
}

// Unwrap exposes the underlying APIError for errors.As.
func (s *statusError) Unwrap() error {
	if s.err != nil {
		return s.err
	}
	return s.api
}

// retryAfter parses a server-supplied delay hint on 429 responses.
func retryAfter(s *statusError) (time.Duration, bool) {
	if s.api == nil || s.api.Status != http.StatusTooManyRequests || s.retryAfter == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(s.retryAfter)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
