package feeds

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/cache"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/config"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/intel"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/metrics"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/logger"
)

// Supplier fetches the configured reputation feeds and ingests their
// entries into an index builder. Each feed contributes entries carrying
// the feed's kind, rating and labels; the feed's key is the provenance.
type Supplier struct {
	feedsConfig *config.FeedsConfig
	fetcherCfg  config.FetcherConfig
	httpClient  *retryablehttp.Client
	cache       cache.Cache
	wg          sync.WaitGroup
}

// NewSupplier creates a Supplier. feedCache may be nil to disable the
// payload cache.
func NewSupplier(feedsCfg *config.FeedsConfig, fetcherCfg config.FetcherConfig, feedCache cache.Cache) *Supplier {
	client := retryablehttp.NewClient()
	client.RetryMax = fetcherCfg.MaxRetries
	client.HTTPClient.Timeout = fetcherCfg.HTTPTimeout
	client.Logger = nil

	return &Supplier{
		feedsConfig: feedsCfg,
		fetcherCfg:  fetcherCfg,
		httpClient:  client,
		cache:       feedCache,
	}
}

// Populate fetches every enabled feed concurrently and ingests the
// parsed entries into builder. Individual feed failures are logged and
// skipped; only the error count is returned alongside the entry total.
// The caller freezes the builder afterwards.
func (s *Supplier) Populate(ctx context.Context, builder *intel.Builder) (totalEntries, failedFeeds int) {
	enabled := s.feedsConfig.GetEnabledFeeds()

	var mu sync.Mutex
	sem := make(chan struct{}, s.fetcherCfg.Concurrency)

	for name, feed := range enabled {
		sem <- struct{}{}

		s.wg.Add(1)
		go func(feedName string, feedConfig config.FeedConfig) {
			defer s.wg.Done()
			defer func() { <-sem }()

			entries, err := s.processFeed(ctx, feedName, feedConfig, builder)

			mu.Lock()
			totalEntries += entries
			if err != nil {
				failedFeeds++
			}
			mu.Unlock()
		}(name, feed)
	}

	s.wg.Wait()
	return totalEntries, failedFeeds
}

// processFeed fetches and ingests all sources of one feed.
func (s *Supplier) processFeed(ctx context.Context, feedName string, feedConfig config.FeedConfig, builder *intel.Builder) (int, error) {
	startTime := time.Now()
	total := 0
	var lastErr error

	for _, source := range feedConfig.Sources {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		payload, err := s.fetchSource(ctx, feedName, source)
		if err != nil {
			logger.Warn(fmt.Sprintf("Failed to fetch source %s/%s: %v", feedName, source.Name, err))
			lastErr = err
			continue
		}

		count := s.ingestPayload(string(payload), feedName, feedConfig, source.Format, builder)
		total += count
		metrics.FeedEntries.WithLabelValues(feedName).Add(float64(count))
		logger.Info(fmt.Sprintf("Ingested %d entries from %s/%s", count, feedName, source.Name))
	}

	logger.Info(fmt.Sprintf("Completed feed %s: %d entries in %v", feedName, total, time.Since(startTime).Round(time.Millisecond)))
	return total, lastErr
}

// fetchSource returns a source's payload, consulting the cache first.
func (s *Supplier) fetchSource(ctx context.Context, feedName string, source config.SourceConfig) ([]byte, error) {
	cacheKey := feedName + "/" + source.Name
	if s.cache != nil {
		if payload, hit := s.cache.Get(ctx, cacheKey); hit {
			return payload, nil
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.fetcherCfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, payload)
	}
	return payload, nil
}

// ingestPayload parses a feed payload line by line and ingests each
// scope. Malformed lines are dropped by the builder without error.
func (s *Supplier) ingestPayload(content, feedName string, feedConfig config.FeedConfig, format string, builder *intel.Builder) int {
	formatConfig, _ := s.feedsConfig.GetFormat(format)

	entry := intel.Entry{
		Kind:     intel.Kind(feedConfig.Kind),
		Name:     feedConfig.Name,
		Category: feedConfig.Category,
		Rating:   intel.Rating(feedConfig.Rating),
		Source:   feedName,
	}
	if entry.Kind == "" {
		entry.Kind = intel.KindBot
	}

	count := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if formatConfig.CommentPrefix != "" && strings.HasPrefix(line, formatConfig.CommentPrefix) {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "//") {
			continue
		}

		scope := extractScope(line, format)
		if scope == "" {
			continue
		}
		builder.Ingest(scope, entry)
		count++
	}
	return count
}

// extractScope pulls the address or CIDR out of one feed line.
func extractScope(line, format string) string {
	switch format {
	case "ip_port":
		// Format: IP:PORT
		idx := strings.LastIndex(line, ":")
		if idx == -1 {
			return line
		}
		return line[:idx]

	case "cidr_comments":
		// Format: CIDR ; comment
		parts := strings.SplitN(line, ";", 2)
		return strings.TrimSpace(parts[0])

	default:
		// Plain format, one IP or CIDR per line
		return line
	}
}
