package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/metrics"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/reconcile"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/logger"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

// RecordSource pages person records by a strictly increasing id cursor.
// An empty page signals end of data.
type RecordSource interface {
	FetchPage(ctx context.Context, cursor string, pageSize int) ([]models.Person, error)
}

// EventSink delivers event batches; success or failure is per batch.
type EventSink interface {
	SendBatch(ctx context.Context, events []models.Event) error
}

// Classifier resolves one (address, user-agent) pair.
type Classifier interface {
	Classify(ip, userAgent string) models.Classification
}

// Config holds pipeline tuning.
type Config struct {
	PageSize  int
	BatchSize int
	DryRun    bool
}

// Pipeline drives the reconciliation run: sequential cursor pagination,
// per-record classify/plan, batched delivery with one overlapping
// in-flight write.
type Pipeline struct {
	source   RecordSource
	sink     EventSink
	resolver Classifier
	planner  *reconcile.Planner
	cfg      Config
	stats    *models.Stats

	buffer   []models.Event
	inflight chan struct{}
}

// New creates a Pipeline. Zero PageSize defaults to 500, zero BatchSize
// to 1000.
func New(source RecordSource, sink EventSink, resolver Classifier, cfg Config, stats *models.Stats) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Pipeline{
		source:   source,
		sink:     sink,
		resolver: resolver,
		planner:  reconcile.New(resolver),
		cfg:      cfg,
		stats:    stats,
	}
}

// Run executes the full reconciliation pass. A read-side terminal
// failure aborts the run, since no further progress is possible; a
// write-side terminal failure is charged against the batch and the run
// continues. Buffered events are always flushed before returning on the
// success path.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	cursor := ""

	for {
		page, err := p.source.FetchPage(ctx, cursor, p.cfg.PageSize)
		if err != nil {
			p.stats.Errors.Add(1)
			p.awaitInflight()
			return fmt.Errorf("fetch page after cursor %q: %w", cursor, err)
		}
		p.stats.Pages.Add(1)
		if len(page) == 0 {
			break
		}

		for _, person := range page {
			p.process(ctx, person)
		}

		cursor = page[len(page)-1].ID
		logger.Info("page processed",
			zap.Int("persons", len(page)),
			zap.String("cursor", cursor),
			zap.Int64("modified", p.stats.Modified.Load()))
	}

	p.flush(ctx)
	p.awaitInflight()

	logger.Info("run complete",
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.Int64("processed", p.stats.Processed.Load()),
		zap.Int64("modified", p.stats.Modified.Load()))
	return nil
}

// process classifies one person and buffers the resulting event, if any.
func (p *Pipeline) process(ctx context.Context, person models.Person) {
	c := p.resolver.Classify(person.IP, person.UserAgent)
	plan := p.planner.Plan(c, person)

	p.stats.Processed.Add(1)
	metrics.PersonsProcessed.Inc()
	if plan.Classification.IsBot {
		p.stats.Bots.Add(1)
		metrics.Classifications.WithLabelValues("bot").Inc()
	}
	if plan.Classification.IsDatacenter {
		p.stats.Datacenters.Add(1)
		metrics.Classifications.WithLabelValues("datacenter").Inc()
	}

	if plan.Kind == reconcile.KindNone {
		return
	}
	p.stats.Modified.Add(1)
	metrics.PersonsModified.Inc()

	ev := models.Event{Name: models.EventSet, DistinctID: person.DistinctID, Set: plan.Patch}
	if plan.Kind == reconcile.KindIdentify {
		ev.Name = models.EventIdentify
		ev.DistinctID = plan.EffectiveID
		ev.AnonDistinctID = person.DistinctID
	}

	p.buffer = append(p.buffer, ev)
	if len(p.buffer) >= p.cfg.BatchSize {
		p.flush(ctx)
	}
}

// flush hands the buffered events to the sink. The write runs in a
// single-slot goroutine so it may overlap the next page's read; the
// batch slice stays owned by that goroutine until delivery completes,
// so no event is discarded before its write finishes.
func (p *Pipeline) flush(ctx context.Context) {
	if len(p.buffer) == 0 {
		return
	}

	batch := make([]models.Event, len(p.buffer))
	copy(batch, p.buffer)
	p.buffer = p.buffer[:0]

	if p.cfg.DryRun {
		logger.Info("dry run: batch not sent", zap.Int("events", len(batch)))
		for _, ev := range batch {
			logger.Debug("dry run event",
				zap.String("event", ev.Name),
				zap.String("distinct_id", ev.DistinctID),
				zap.Any("set", ev.Set))
		}
		return
	}

	p.awaitInflight()
	done := make(chan struct{})
	p.inflight = done
	go func() {
		defer close(done)
		if err := p.sink.SendBatch(ctx, batch); err != nil {
			// Terminal write failure: every event in the batch counts
			// as an error and pagination carries on.
			p.stats.Errors.Add(int64(len(batch)))
			metrics.DeliveryErrors.Add(float64(len(batch)))
			metrics.BatchesFlushed.WithLabelValues("error").Inc()
			logger.Error("batch delivery failed",
				zap.Int("events", len(batch)),
				zap.Error(err))
			return
		}
		p.stats.EventsSent.Add(int64(len(batch)))
		metrics.EventsSent.Add(float64(len(batch)))
		metrics.BatchesFlushed.WithLabelValues("ok").Inc()
	}()
}

// awaitInflight blocks until the previous async write, if any, is done.
func (p *Pipeline) awaitInflight() {
	if p.inflight != nil {
		<-p.inflight
		p.inflight = nil
	}
}
