package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PersonsProcessed counts person records run through classification
	PersonsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bottagger_persons_processed_total",
			Help: "Total person records processed",
		},
	)

	// PersonsModified counts records that produced an outbound event
	PersonsModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bottagger_persons_modified_total",
			Help: "Total person records that needed an update",
		},
	)

	// Classifications counts bot/datacenter verdicts
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bottagger_classifications_total",
			Help: "Total classifications by verdict",
		},
		[]string{"verdict"},
	)

	// EventsSent counts delivered capture events
	EventsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bottagger_events_sent_total",
			Help: "Total capture events delivered",
		},
	)

	// BatchesFlushed counts batch deliveries by outcome
	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bottagger_batches_flushed_total",
			Help: "Total event batches flushed",
		},
		[]string{"outcome"},
	)

	// TransportRetries counts retry waits on the platform API
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bottagger_transport_retries_total",
			Help: "Total retry waits against the platform API",
		},
	)

	// DeliveryErrors counts events lost to terminal write failures
	DeliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bottagger_delivery_errors_total",
			Help: "Total events lost to terminal delivery failures",
		},
	)

	// FeedEntries counts ingested reputation entries per source
	FeedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bottagger_feed_entries_total",
			Help: "Total reputation entries ingested",
		},
		[]string{"source"},
	)

	// IndexExactEntries tracks the frozen index's exact-address size
	IndexExactEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bottagger_index_exact_entries",
			Help: "Exact-address entries in the frozen index",
		},
	)

	// IndexRangeEntries tracks the frozen index's range count
	IndexRangeEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bottagger_index_range_entries",
			Help: "Range entries in the frozen index",
		},
	)
)
