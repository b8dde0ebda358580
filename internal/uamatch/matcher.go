// Package uamatch provides the default user-agent bot matcher, backed
// by the crawlerdetect signature database.
package uamatch

import (
	"strings"

	"github.com/x-way/crawlerdetect"
)

// labelKeywords mark a user-agent product token as the bot-identifying
// one. crawlerdetect answers only yes/no, so the display name has to be
// recovered from the string itself.
var labelKeywords = []string{
	"bot", "crawl", "spider", "slurp", "fetch", "archiver",
	"scanner", "externalhit", "headless", "preview",
}

// CrawlerMatcher adapts crawlerdetect to the resolver's Matcher
// capability.
type CrawlerMatcher struct {
	detector *crawlerdetect.CrawlerDetect
}

// New returns a matcher over the bundled signature list.
func New() *CrawlerMatcher {
	return &CrawlerMatcher{detector: crawlerdetect.New()}
}

// Match reports whether userAgent matches a known crawler signature.
func (m *CrawlerMatcher) Match(userAgent string) bool {
	return m.detector.IsCrawler(userAgent)
}

// Label returns a best-guess bot name for userAgent: the first product
// token whose name carries a crawler keyword, with any /version suffix
// stripped. Empty when no token qualifies.
func (m *CrawlerMatcher) Label(userAgent string) string {
	tokens := strings.FieldsFunc(userAgent, func(r rune) bool {
		switch r {
		case ' ', '\t', ';', ',', '(', ')':
			return true
		}
		return false
	})

	for _, tok := range tokens {
		// Contact URLs like +http://example.com/bot.html carry the
		// keywords without being a name.
		if strings.Contains(tok, "://") {
			continue
		}
		name := tok
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[:i]
		}
		lower := strings.ToLower(name)
		for _, kw := range labelKeywords {
			if strings.Contains(lower, kw) {
				return name
			}
		}
	}
	return ""
}
