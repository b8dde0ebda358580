package intel

import (
	"sort"
	"strings"
	"sync"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/iputil"
)

type rangeEntry struct {
	start uint32
	end   uint32
	entry Entry
}

// Builder accumulates reputation entries from any number of suppliers,
// possibly concurrently, then freezes into an immutable Index. Malformed
// scopes are dropped without interrupting the ingest stream.
type Builder struct {
	mu     sync.Mutex
	exact  map[uint32]Entry
	ranges []rangeEntry
	frozen bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{exact: make(map[uint32]Entry)}
}

// Ingest adds one entry under the given scope. A scope containing a
// slash is CIDR notation and lands in the range list; anything else is
// treated as a single address. Duplicate scopes merge per the precedence
// rules rather than replacing.
func (b *Builder) Ingest(scope string, e Entry) {
	e = Normalize(e)

	if strings.Contains(scope, "/") {
		start, end, ok := iputil.ParseCIDR(scope)
		if !ok {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.frozen {
			return
		}
		for i := range b.ranges {
			if b.ranges[i].start == start && b.ranges[i].end == end {
				b.ranges[i].entry = Merge(b.ranges[i].entry, e)
				return
			}
		}
		b.ranges = append(b.ranges, rangeEntry{start: start, end: end, entry: e})
		return
	}

	addr, ok := iputil.ParseIPv4(scope)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return
	}
	if existing, found := b.exact[addr]; found {
		b.exact[addr] = Merge(existing, e)
	} else {
		b.exact[addr] = e
	}
}

// Freeze sorts the range list and hands the data over to an immutable
// Index. It is the barrier between ingestion and lookups: every
// concurrent Ingest must have returned before calling it, and the
// Builder accepts nothing afterwards.
func (b *Builder) Freeze() *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true

	sort.Slice(b.ranges, func(i, j int) bool {
		return b.ranges[i].start < b.ranges[j].start
	})

	return &Index{exact: b.exact, ranges: b.ranges}
}

// Index is the frozen, read-only IP intelligence index. Safe for
// concurrent lookups without synchronization.
type Index struct {
	exact  map[uint32]Entry
	ranges []rangeEntry
}

// Exact returns the merged entry for an exact address match.
func (ix *Index) Exact(ip string) (Entry, bool) {
	addr, ok := iputil.ParseIPv4(ip)
	if !ok {
		return Entry{}, false
	}
	e, found := ix.exact[addr]
	return e, found
}

// CoveringRange binary-searches for the range containing ip. Ranges are
// assumed non-overlapping within one freeze.
func (ix *Index) CoveringRange(ip string) (Entry, bool) {
	addr, ok := iputil.ParseIPv4(ip)
	if !ok {
		return Entry{}, false
	}
	// First range starting beyond addr; the candidate is the one before.
	i := sort.Search(len(ix.ranges), func(i int) bool {
		return ix.ranges[i].start > addr
	})
	if i == 0 {
		return Entry{}, false
	}
	r := ix.ranges[i-1]
	if addr <= r.end {
		return r.entry, true
	}
	return Entry{}, false
}

// Lookup returns the exact-match entry when present, otherwise the
// covering range's entry. Combining both when they coexist is the
// resolver's job.
func (ix *Index) Lookup(ip string) (Entry, bool) {
	if e, ok := ix.Exact(ip); ok {
		return e, true
	}
	return ix.CoveringRange(ip)
}

// ExactCount returns the number of exact-address entries.
func (ix *Index) ExactCount() int {
	return len(ix.exact)
}

// RangeCount returns the number of range entries.
func (ix *Index) RangeCount() int {
	return len(ix.ranges)
}
