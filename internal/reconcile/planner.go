package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

// Person property names written by the planner.
const (
	PropIsBot          = "is_bot"
	PropIsGoodBot      = "is_good_bot"
	PropBotName        = "bot_name"
	PropBotType        = "bot_type"
	PropBotSource      = "bot_identification_source"
	PropDatacenter     = "datacenter"
	PropInitialAddress = "initial_address"
	PropLatestAddress  = "latest_address"
	PropLatestNonProxy = "latest_nonproxy_address"
)

// BadBotPlaceholder names bad actors whose bot name was scrubbed or
// absent when composing an effective identity.
const BadBotPlaceholder = "Bad Bot"

// EventKind says what, if anything, a plan should send.
type EventKind int

const (
	KindNone EventKind = iota
	KindSet
	KindIdentify
)

// Plan is the planner's output for one record: the minimal property
// patch, the event kind, and the identity the event should be recorded
// under.
type Plan struct {
	Patch       models.Properties
	Kind        EventKind
	EffectiveID string

	// Classification is the final verdict after the initial-address
	// re-check, for the caller's statistics.
	Classification models.Classification
}

// classifier is the slice of the resolver the planner needs for the
// initial-address re-check.
type classifier interface {
	Classify(ip, userAgent string) models.Classification
}

// Planner computes minimal, idempotent patches converging a record's
// stored state with a freshly computed classification.
type Planner struct {
	resolver classifier
}

// New creates a Planner backed by the given resolver.
func New(resolver classifier) *Planner {
	return &Planner{resolver: resolver}
}

// Plan applies the reconciliation rules for one person. c is the
// classification computed against the person's most recent address.
func (p *Planner) Plan(c models.Classification, person models.Person) Plan {
	c = p.recheckInitialAddress(c, person)

	patch := models.Properties{}

	if c.IsBot && !looselyEqual(true, person.IsBot) {
		patch[PropIsBot] = true
		// Identity details ride along with the flag: once a record is
		// marked, repeated runs leave them alone.
		if c.BotName != "" {
			patch[PropBotName] = c.BotName
		}
		if c.BotCategory != "" {
			patch[PropBotType] = c.BotCategory
		}
		if c.BotSource != "" {
			patch[PropBotSource] = c.BotSource
		}
	}
	if c.IsBot && c.IsGoodBot != nil && !looselyEqual(*c.IsGoodBot, person.IsGoodBot) {
		patch[PropIsGoodBot] = *c.IsGoodBot
	}
	if c.IsDatacenter && c.DatacenterName != "" && !looselyEqual(c.DatacenterName, person.Datacenter) {
		patch[PropDatacenter] = c.DatacenterName
	}

	if person.IP != "" {
		if stringValue(person.InitialIP) == "" {
			patch[PropInitialAddress] = person.IP
		}
		if !looselyEqual(person.IP, person.LatestIP) {
			patch[PropLatestAddress] = person.IP
		}
		if !c.IsBot && !c.IsDatacenter && !looselyEqual(person.IP, person.LatestNonProxyIP) {
			patch[PropLatestNonProxy] = person.IP
		}
	}

	effective := effectiveIdentity(c, person)

	plan := Plan{Patch: patch, EffectiveID: effective, Classification: c}
	switch {
	case effective != person.DistinctID:
		plan.Kind = KindIdentify
	case len(patch) > 0:
		plan.Kind = KindSet
	default:
		plan.Kind = KindNone
	}
	return plan
}

// recheckInitialAddress re-runs classification against the record's
// first-seen address when the primary lookup found no bot. A confirmed
// bot or datacenter seen on any address must not be forgotten just
// because the latest session came from a clean one.
func (p *Planner) recheckInitialAddress(c models.Classification, person models.Person) models.Classification {
	if c.IsBot {
		return c
	}
	initial := stringValue(person.InitialIP)
	if initial == "" || initial == person.IP {
		return c
	}

	fb := p.resolver.Classify(initial, person.UserAgent)
	if fb.IsBot {
		c.IsBot = true
		c.IsGoodBot = fb.IsGoodBot
		c.BotName = fb.BotName
		c.BotCategory = fb.BotCategory
		c.BotSource = fb.BotSource
	}
	if fb.IsDatacenter && !c.IsDatacenter {
		c.IsDatacenter = true
		c.DatacenterName = fb.DatacenterName
	}
	return c
}

// effectiveIdentity picks the identity the event is recorded under. A
// good bot with a known name merges all its sessions under that name; a
// confirmed bad bot stays distinguishable per address.
func effectiveIdentity(c models.Classification, person models.Person) string {
	if !c.IsBot || c.IsGoodBot == nil {
		return person.DistinctID
	}
	if *c.IsGoodBot {
		if c.BotName != "" {
			return c.BotName
		}
		return person.DistinctID
	}
	name := c.BotName
	if name == "" {
		name = BadBotPlaceholder
	}
	return name + " (" + person.IP + ")"
}

// stringValue renders a loosely typed stored property as a trimmed
// string, with nil becoming empty.
func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

// canonical normalizes a scalar for loose comparison: boolean, numeric
// and string spellings of true/false collapse to one form. The second
// return is false when the value is absent.
func canonical(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		return strconv.FormatBool(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		switch strings.ToLower(s) {
		case "true", "1":
			return "true", true
		case "false", "0":
			return "false", true
		}
		return s, true
	case float64:
		return canonicalFloat(t)
	case float32:
		return canonicalFloat(float64(t))
	case int:
		return canonicalFloat(float64(t))
	case int64:
		return canonicalFloat(float64(t))
	default:
		return fmt.Sprint(t), true
	}
}

func canonicalFloat(f float64) (string, bool) {
	switch f {
	case 1:
		return "true", true
	case 0:
		return "false", true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// looselyEqual reports whether a computed value and a stored value are
// equivalent after normalization. An absent stored value never equals
// anything, so the candidate is written.
func looselyEqual(computed, stored any) bool {
	a, okA := canonical(computed)
	b, okB := canonical(stored)
	if !okA || !okB {
		return false
	}
	return a == b
}
