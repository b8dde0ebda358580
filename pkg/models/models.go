package models

import "sync/atomic"

// Person holds the reputation-relevant slice of a person record as
// returned by the analytics platform. Property values arrive loosely
// typed (bool, number or string depending on how they were written), so
// the stored fields are kept as any and normalized at comparison time.
type Person struct {
	ID               string
	DistinctID       string
	IP               string
	UserAgent        string
	IsBot            any
	IsGoodBot        any
	InitialIP        any
	LatestIP         any
	Datacenter       any
	LatestNonProxyIP any
}

// Classification is the resolver's verdict for one (address, user-agent)
// pair. Computed fresh per record, never stored.
type Classification struct {
	IsBot          bool
	IsGoodBot      *bool
	BotName        string
	BotCategory    string
	BotSource      string
	IsDatacenter   bool
	DatacenterName string
}

// Properties is a person property patch keyed by property name.
type Properties map[string]any

// Event names understood by the platform's capture endpoint.
const (
	EventSet      = "$set"
	EventIdentify = "$identify"
)

// Event is one outbound capture call: either a plain property-set event
// or an identity-merge event carrying the original distinct id as an
// anonymous alias.
type Event struct {
	Name           string
	DistinctID     string
	AnonDistinctID string
	Set            Properties
}

// Bool returns a pointer to b, for the tri-state Classification fields.
func Bool(b bool) *bool {
	return &b
}

// Stats holds the run's aggregate counters. The delivery pipeline
// increments these from the page loop and from the in-flight flush
// goroutine, so everything is atomic.
type Stats struct {
	Processed   atomic.Int64
	Modified    atomic.Int64
	Bots        atomic.Int64
	Datacenters atomic.Int64
	Pages       atomic.Int64
	EventsSent  atomic.Int64
	Retries     atomic.Int64
	Errors      atomic.Int64
}

// Snapshot returns a plain-value copy for reporting.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:   s.Processed.Load(),
		Modified:    s.Modified.Load(),
		Bots:        s.Bots.Load(),
		Datacenters: s.Datacenters.Load(),
		Pages:       s.Pages.Load(),
		EventsSent:  s.EventsSent.Load(),
		Retries:     s.Retries.Load(),
		Errors:      s.Errors.Load(),
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Processed   int64
	Modified    int64
	Bots        int64
	Datacenters int64
	Pages       int64
	EventsSent  int64
	Retries     int64
	Errors      int64
}
