package resolver

import (
	"strings"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/intel"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

// Matcher reports whether a user-agent string carries a known bot
// signature, and a best-guess label for it.
type Matcher interface {
	Match(userAgent string) bool
	Label(userAgent string) string
}

// Sources reported on a classification.
const (
	SourceIPList    = "IP List"
	SourceUserAgent = "User Agent"
)

// CategoryCrawler is assigned to bots identified by user-agent alone.
const CategoryCrawler = "Crawler"

// scrubbedNames are placeholder names never surfaced as a bot or
// datacenter name: the sentinels plus source labels that leak through
// some feeds as if they were identities.
var scrubbedNames = map[string]struct{}{
	intel.NameUnknown:                {},
	intel.CategoryUncategorized:      {},
	"GoodBot":                        {},
	"Generic Bot":                    {},
	"Bad Web Bot":                    {},
	"Known Bad Bot":                  {},
	"DataCenter/Web Hosting/Transit": {},
}

// labelOverrides maps ambiguous or truncated user-agent signatures to a
// canonical label. Matched by exact substring of the raw user-agent.
var labelOverrides = []struct {
	substr string
	label  string
}{
	{"Yahoo! Slurp", "Yahoo Slurp"},
	{"facebookexternalhit", "Facebook Crawler"},
	{"AdsBot-Google", "Google AdsBot"},
	{"HeadlessChrome", "Headless Chrome"},
	{"YandexBot", "YandexBot"},
	{"bingbot", "Bingbot"},
}

// Resolver turns an (address, user-agent) pair into a single
// deterministic classification against a frozen intelligence index.
type Resolver struct {
	index   *intel.Index
	matcher Matcher
}

// New creates a Resolver over a frozen index. matcher may be nil, in
// which case user-agent fallback is disabled.
func New(index *intel.Index, matcher Matcher) *Resolver {
	return &Resolver{index: index, matcher: matcher}
}

// Classify resolves ip and userAgent into a Classification. Total over
// malformed input: an unparsable or empty address simply contributes no
// IP-based match.
func (r *Resolver) Classify(ip, userAgent string) models.Classification {
	var c models.Classification

	if entry, ok := r.ipMatch(ip); ok {
		applyEntry(&c, entry)
	}

	if !c.IsBot && userAgent != "" && r.matcher != nil && r.matcher.Match(userAgent) {
		c.IsBot = true
		c.IsGoodBot = models.Bool(true) // UA matches are never rated bad
		c.BotCategory = CategoryCrawler
		c.BotSource = SourceUserAgent
		c.BotName = uaLabel(userAgent, r.matcher.Label(userAgent))
	}

	return c
}

// ipMatch queries exact and range entries independently and combines
// them under the merge precedence rules when both exist.
func (r *Resolver) ipMatch(ip string) (intel.Entry, bool) {
	if ip == "" {
		return intel.Entry{}, false
	}

	exact, exactOK := r.index.Exact(ip)
	ranged, rangeOK := r.index.CoveringRange(ip)

	switch {
	case exactOK && rangeOK:
		// The exact entry is the existing side so its identity
		// survives when both sides name a specific bot, consistent
		// with Index.Lookup preferring exact matches.
		return intel.Merge(exact, ranged), true
	case exactOK:
		return exact, true
	case rangeOK:
		return ranged, true
	}
	return intel.Entry{}, false
}

// applyEntry maps a merged index entry onto the classification.
func applyEntry(c *models.Classification, e intel.Entry) {
	if e.Kind == intel.KindBot {
		c.IsBot = true
		c.BotName = scrubName(e.Name)
		// Category survives even when generic: a confirmed bot always
		// reports a category.
		if e.Category == intel.CategoryUncategorized {
			c.BotCategory = intel.NameUnknown
		} else {
			c.BotCategory = e.Category
		}
		c.BotSource = e.Source
		if c.BotSource == "" {
			c.BotSource = SourceIPList
		}
		switch e.Rating {
		case intel.RatingGood:
			c.IsGoodBot = models.Bool(true)
		case intel.RatingBad:
			c.IsGoodBot = models.Bool(false)
		}
	}

	if e.Kind == intel.KindDatacenter {
		c.IsDatacenter = true
		c.DatacenterName = scrubName(e.Name)
	} else if e.Datacenter != "" {
		c.IsDatacenter = true
		c.DatacenterName = scrubName(e.Datacenter)
	}
}

// scrubName nulls sentinel and low-value placeholder names.
func scrubName(name string) string {
	if _, scrubbed := scrubbedNames[name]; scrubbed {
		return ""
	}
	return name
}

// uaLabel normalizes a matcher label: canonical overrides for known
// ambiguous signatures, the generic GoodBot label dropped, and labels
// with fewer than two alphanumeric characters discarded as too weak.
func uaLabel(userAgent, label string) string {
	for _, o := range labelOverrides {
		if strings.Contains(userAgent, o.substr) {
			label = o.label
			break
		}
	}

	if label == "GoodBot" {
		return ""
	}

	var signal int
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			signal++
		}
	}
	if signal < 2 {
		return ""
	}
	return label
}
