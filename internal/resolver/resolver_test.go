package resolver

import (
	"testing"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/intel"
)

type fakeMatcher struct {
	match bool
	label string
}

func (f fakeMatcher) Match(string) bool   { return f.match }
func (f fakeMatcher) Label(string) string { return f.label }

func buildIndex(ingest func(b *intel.Builder)) *intel.Index {
	b := intel.NewBuilder()
	ingest(b)
	return b.Freeze()
}

func TestClassifyBotFromIP(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("1.2.3.4", intel.Entry{Kind: intel.KindBot, Name: "AhrefsBot", Category: "SEO", Rating: intel.RatingBad, Source: "blacklist"})
	})
	r := New(ix, nil)

	c := r.Classify("1.2.3.4", "")

	if !c.IsBot || c.BotName != "AhrefsBot" || c.BotCategory != "SEO" {
		t.Errorf("unexpected classification: %+v", c)
	}
	if c.IsGoodBot == nil || *c.IsGoodBot {
		t.Error("bad rating should yield isGoodBot=false")
	}
	if c.BotSource != "blacklist" {
		t.Errorf("BotSource = %q", c.BotSource)
	}
}

func TestClassifyNeutralRatingLeavesGoodBotUnset(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("1.2.3.4", intel.Entry{Kind: intel.KindBot, Name: "SomeBot", Category: "Crawler", Source: "feed"})
	})
	c := New(ix, nil).Classify("1.2.3.4", "")

	if !c.IsBot || c.IsGoodBot != nil {
		t.Errorf("neutral rating should leave IsGoodBot unset: %+v", c)
	}
}

func TestClassifyCombinesExactAndRange(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("5.5.0.0/16", intel.Entry{Kind: intel.KindDatacenter, Name: "Hetzner", Category: "Hosting", Source: "dc"})
		b.Ingest("5.5.5.5", intel.Entry{Kind: intel.KindBot, Name: "Googlebot", Category: "Search Engine", Rating: intel.RatingGood, Source: "crawlers"})
	})
	c := New(ix, nil).Classify("5.5.5.5", "")

	if !c.IsBot || c.BotName != "Googlebot" {
		t.Fatalf("bot identity should win: %+v", c)
	}
	if !c.IsDatacenter || c.DatacenterName != "Hetzner" {
		t.Errorf("datacenter side-channel lost: %+v", c)
	}
}

func TestClassifyExactBotBeatsRangeBot(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("6.6.0.0/16", intel.Entry{Kind: intel.KindBot, Name: "RangeBot", Category: "Abuse", Rating: intel.RatingBad, Source: "rangefeed"})
		b.Ingest("6.6.6.6", intel.Entry{Kind: intel.KindBot, Name: "Googlebot", Category: "Search Engine", Rating: intel.RatingGood, Source: "crawlers"})
	})
	c := New(ix, nil).Classify("6.6.6.6", "")

	if c.BotName != "Googlebot" {
		t.Fatalf("exact identity should survive over the covering range: %+v", c)
	}
	if c.IsGoodBot == nil || !*c.IsGoodBot {
		t.Errorf("exact rating should survive: %+v", c)
	}
}

func TestClassifyDatacenterOnly(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("9.9.0.0/16", intel.Entry{Kind: intel.KindDatacenter, Name: "OVH", Category: "Hosting", Source: "dc"})
	})
	c := New(ix, nil).Classify("9.9.1.1", "")

	if c.IsBot {
		t.Error("datacenter match alone must not mark a bot")
	}
	if !c.IsDatacenter || c.DatacenterName != "OVH" {
		t.Errorf("unexpected: %+v", c)
	}
}

func TestSentinelScrubbing(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("2.2.2.2", intel.Entry{Kind: intel.KindBot, Source: "blacklist"})
		b.Ingest("3.3.0.0/16", intel.Entry{Kind: intel.KindDatacenter, Source: "dc"})
	})
	r := New(ix, nil)

	c := r.Classify("2.2.2.2", "")
	if c.BotName != "" {
		t.Errorf("sentinel name should scrub to empty, got %q", c.BotName)
	}
	if c.BotCategory != intel.NameUnknown {
		t.Errorf("bot category must survive as Unknown, got %q", c.BotCategory)
	}

	c = r.Classify("3.3.1.1", "")
	if !c.IsDatacenter || c.DatacenterName != "" {
		t.Errorf("datacenter sentinel name should scrub but flag stay: %+v", c)
	}
}

func TestLowValueSourceLabelScrubbed(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("4.4.4.4", intel.Entry{Kind: intel.KindBot, Name: "Known Bad Bot", Category: "Abuse", Rating: intel.RatingBad, Source: "feed"})
	})
	c := New(ix, nil).Classify("4.4.4.4", "")

	if c.BotName != "" {
		t.Errorf("leaked source label should scrub, got %q", c.BotName)
	}
	if !c.IsBot || c.BotCategory != "Abuse" {
		t.Errorf("bot status and category must survive scrubbing: %+v", c)
	}
}

func TestUserAgentFallback(t *testing.T) {
	ix := buildIndex(func(*intel.Builder) {})
	r := New(ix, fakeMatcher{match: true, label: "PetalBot"})

	c := r.Classify("8.8.8.8", "Mozilla/5.0 (compatible; PetalBot)")

	if !c.IsBot || c.BotName != "PetalBot" {
		t.Fatalf("unexpected: %+v", c)
	}
	if c.BotCategory != CategoryCrawler || c.BotSource != SourceUserAgent {
		t.Errorf("UA match must report Crawler/User Agent: %+v", c)
	}
	if c.IsGoodBot == nil || !*c.IsGoodBot {
		t.Error("UA-only matches are never bad")
	}
}

func TestUserAgentFallbackSkippedWhenIPFoundBot(t *testing.T) {
	ix := buildIndex(func(b *intel.Builder) {
		b.Ingest("1.1.1.1", intel.Entry{Kind: intel.KindBot, Name: "ListBot", Category: "Abuse", Rating: intel.RatingBad, Source: "blacklist"})
	})
	r := New(ix, fakeMatcher{match: true, label: "UABot"})

	c := r.Classify("1.1.1.1", "whatever")

	if c.BotName != "ListBot" || c.BotSource != "blacklist" {
		t.Errorf("IP classification must win over UA fallback: %+v", c)
	}
}

func TestUaLabelRules(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		label     string
		want      string
	}{
		{"Plain label kept", "SomeAgent", "PetalBot", "PetalBot"},
		{"GoodBot is no name", "SomeAgent", "GoodBot", ""},
		{"Single char too weak", "SomeAgent", "a", ""},
		{"Punctuation only too weak", "SomeAgent", "-.-", ""},
		{"Two alphanumerics pass", "SomeAgent", "a1", "a1"},
		{"Override by substring", "Mozilla/5.0 (compatible; Yahoo! Slurp)", "slurp", "Yahoo Slurp"},
		{"Facebook override", "facebookexternalhit/1.1", "facebook", "Facebook Crawler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := uaLabel(tt.userAgent, tt.label); got != tt.want {
				t.Errorf("uaLabel(%q, %q) = %q, want %q", tt.userAgent, tt.label, got, tt.want)
			}
		})
	}
}

func TestClassifyEmptyInputs(t *testing.T) {
	ix := buildIndex(func(*intel.Builder) {})
	c := New(ix, fakeMatcher{}).Classify("", "")

	if c.IsBot || c.IsDatacenter {
		t.Errorf("absent inputs must classify clean: %+v", c)
	}
}
