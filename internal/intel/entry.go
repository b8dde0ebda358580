package intel

// Kind tags what a reputation source claims an address to be.
type Kind string

const (
	KindBot        Kind = "bot"
	KindDatacenter Kind = "datacenter"
)

// Rating is a source's judgement of a bot.
type Rating string

const (
	RatingGood    Rating = "good"
	RatingBad     Rating = "bad"
	RatingNeutral Rating = "neutral"
)

// Sentinel values used where a source supplies no specific identity.
// They stand in for absence so merge logic never branches on missing
// fields; the resolver scrubs them back out at the boundary.
const (
	NameUnknown           = "Unknown"
	CategoryUncategorized = "Uncategorized"
)

// Entry is one normalized reputation fact. Source is the provenance
// label; when entries merge it accumulates as a composed label.
// Datacenter is a side-channel name attached when a datacenter entry is
// folded into a bot entry.
type Entry struct {
	Kind       Kind
	Name       string
	Category   string
	Rating     Rating
	Source     string
	Datacenter string
}

// Generic reports whether the entry carries no specific identity.
func (e Entry) Generic() bool {
	return e.Name == NameUnknown || e.Category == CategoryUncategorized
}

// Normalize fills the sentinel defaults on an entry as it comes in from
// a supplier: empty name, category and rating get their sentinels.
func Normalize(e Entry) Entry {
	if e.Name == "" {
		e.Name = NameUnknown
	}
	if e.Category == "" {
		e.Category = CategoryUncategorized
	}
	if e.Rating == "" {
		e.Rating = RatingNeutral
	}
	return e
}

// Merge combines two entries referring to the same address or range.
//
// Precedence, in order:
//  1. A bot with a specific name upgrades a datacenter entry or a
//     generic-named entry. The merged entry becomes that bot; a
//     datacenter name is preserved as the side-channel field.
//  2. A datacenter folded into an existing bot leaves the bot's identity
//     alone and attaches the datacenter name, appending provenance in
//     parenthesized form.
//  3. Two datacenters keep whichever side has a specific name, the
//     existing one winning when both do.
//  4. Anything else is a no-op: the existing entry wins. In particular,
//     two specifically named bots resolve first-writer-wins.
func Merge(existing, incoming Entry) Entry {
	incoming = Normalize(incoming)

	if incoming.Kind == KindBot && !incoming.Generic() &&
		(existing.Kind == KindDatacenter || existing.Generic()) {
		merged := incoming
		merged.Source = existing.Source + " + " + incoming.Source
		merged.Datacenter = existing.Datacenter
		if existing.Kind == KindDatacenter {
			merged.Datacenter = existing.Name
		}
		return merged
	}

	if incoming.Kind == KindDatacenter && existing.Kind == KindBot {
		merged := existing
		merged.Datacenter = incoming.Name
		merged.Source = existing.Source + " (" + incoming.Source + ")"
		return merged
	}

	if incoming.Kind == KindDatacenter && existing.Kind == KindDatacenter {
		merged := existing
		if merged.Name == NameUnknown && incoming.Name != NameUnknown {
			merged.Name = incoming.Name
			merged.Category = incoming.Category
		}
		merged.Source = existing.Source + " + " + incoming.Source
		return merged
	}

	return existing
}
