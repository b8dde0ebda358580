package reconcile

import (
	"testing"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

type fakeResolver struct {
	byIP map[string]models.Classification
}

func (f fakeResolver) Classify(ip, _ string) models.Classification {
	return f.byIP[ip]
}

func newPlanner(byIP map[string]models.Classification) *Planner {
	return New(fakeResolver{byIP: byIP})
}

func cleanClassification() models.Classification {
	return models.Classification{}
}

func TestPlanGoodBotIdentityEscalation(t *testing.T) {
	c := models.Classification{
		IsBot:       true,
		IsGoodBot:   models.Bool(true),
		BotName:     "Googlebot",
		BotCategory: "Search Engine",
		BotSource:   "IP List",
	}
	person := models.Person{DistinctID: "abc-123", IP: "66.249.66.1"}

	plan := newPlanner(nil).Plan(c, person)

	if plan.EffectiveID != "Googlebot" {
		t.Errorf("EffectiveID = %q, want Googlebot", plan.EffectiveID)
	}
	if plan.Kind != KindIdentify {
		t.Errorf("Kind = %v, want identify", plan.Kind)
	}
	if plan.Patch[PropIsBot] != true || plan.Patch[PropBotName] != "Googlebot" {
		t.Errorf("patch missing bot properties: %v", plan.Patch)
	}
}

func TestPlanBadBotCompositeIdentity(t *testing.T) {
	c := models.Classification{
		IsBot:     true,
		IsGoodBot: models.Bool(false),
		BotName:   "AhrefsBot",
	}
	person := models.Person{DistinctID: "xyz", IP: "9.9.9.9"}

	plan := newPlanner(nil).Plan(c, person)

	if plan.EffectiveID != "AhrefsBot (9.9.9.9)" {
		t.Errorf("EffectiveID = %q", plan.EffectiveID)
	}
	if plan.Kind != KindIdentify {
		t.Errorf("Kind = %v, want identify", plan.Kind)
	}
}

func TestPlanBadBotPlaceholderName(t *testing.T) {
	c := models.Classification{IsBot: true, IsGoodBot: models.Bool(false)}
	person := models.Person{DistinctID: "xyz", IP: "9.9.9.9"}

	plan := newPlanner(nil).Plan(c, person)

	if plan.EffectiveID != "Bad Bot (9.9.9.9)" {
		t.Errorf("EffectiveID = %q", plan.EffectiveID)
	}
}

func TestPlanIdempotence(t *testing.T) {
	c := models.Classification{
		IsBot:          true,
		IsGoodBot:      models.Bool(false),
		BotName:        "ScanBot",
		BotCategory:    "Scanner",
		BotSource:      "IP List",
		IsDatacenter:   true,
		DatacenterName: "OVH",
	}
	// Stored state already reflects the first run's writes, with the
	// loosely-typed spellings the platform hands back.
	person := models.Person{
		DistinctID:       "ScanBot (5.5.5.5)",
		IP:               "5.5.5.5",
		IsBot:            "true",
		IsGoodBot:        float64(0),
		InitialIP:        "5.5.5.5",
		LatestIP:         "5.5.5.5",
		Datacenter:       "OVH",
		LatestNonProxyIP: nil,
	}

	plan := newPlanner(nil).Plan(c, person)

	if len(plan.Patch) != 0 {
		t.Errorf("second run should produce empty patch, got %v", plan.Patch)
	}
	if plan.Kind != KindNone {
		t.Errorf("Kind = %v, want none", plan.Kind)
	}
}

func TestPlanRedundancyFilterLooseEquality(t *testing.T) {
	tests := []struct {
		name   string
		stored any
	}{
		{"Stored bool", true},
		{"Stored numeric", float64(1)},
		{"Stored string true", "true"},
		{"Stored string one", "1"},
	}

	c := models.Classification{IsBot: true, BotCategory: "Unknown", BotSource: "IP List"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			person := models.Person{
				DistinctID: "d", IP: "1.1.1.1",
				IsBot: tt.stored, InitialIP: "1.1.1.1", LatestIP: "1.1.1.1",
			}
			plan := newPlanner(nil).Plan(c, person)
			if _, present := plan.Patch[PropIsBot]; present {
				t.Errorf("is_bot should be filtered for stored %v, patch %v", tt.stored, plan.Patch)
			}
			if _, present := plan.Patch[PropBotType]; present {
				t.Error("bot detail properties ride with the flag and must be filtered with it")
			}
		})
	}
}

func TestPlanInitialAddressFallback(t *testing.T) {
	resolver := map[string]models.Classification{
		"6.6.6.6": {
			IsBot:       true,
			IsGoodBot:   models.Bool(false),
			BotName:     "OldBot",
			BotCategory: "Abuse",
			BotSource:   "IP List",
		},
	}
	person := models.Person{
		DistinctID: "d",
		IP:         "8.8.8.8", // clean current address
		InitialIP:  "6.6.6.6", // bot-tagged earlier session
	}

	plan := newPlanner(resolver).Plan(cleanClassification(), person)

	if plan.Patch[PropIsBot] != true || plan.Patch[PropBotName] != "OldBot" {
		t.Errorf("bot finding on initial address must supersede, patch %v", plan.Patch)
	}
	if _, present := plan.Patch[PropLatestNonProxy]; present {
		t.Error("record re-classified as bot must not set latest_nonproxy_address")
	}
}

func TestPlanInitialAddressFallbackMergesDatacenter(t *testing.T) {
	resolver := map[string]models.Classification{
		"6.6.6.6": {IsDatacenter: true, DatacenterName: "Hetzner"},
	}
	person := models.Person{DistinctID: "d", IP: "8.8.8.8", InitialIP: "6.6.6.6"}

	plan := newPlanner(resolver).Plan(cleanClassification(), person)

	if plan.Patch[PropDatacenter] != "Hetzner" {
		t.Errorf("datacenter finding on initial address should merge in, patch %v", plan.Patch)
	}
}

func TestPlanFallbackSkippedWhenAddressesMatch(t *testing.T) {
	resolver := map[string]models.Classification{
		"8.8.8.8": {IsBot: true, BotName: "ShouldNotFire"},
	}
	person := models.Person{DistinctID: "d", IP: "8.8.8.8", InitialIP: "8.8.8.8"}

	// The primary classification for 8.8.8.8 was already computed (clean
	// here); an identical initial address must not trigger a re-check.
	plan := newPlanner(resolver).Plan(cleanClassification(), person)

	if _, present := plan.Patch[PropIsBot]; present {
		t.Errorf("unexpected re-check, patch %v", plan.Patch)
	}
}

func TestPlanAddressProperties(t *testing.T) {
	person := models.Person{DistinctID: "d", IP: "4.4.4.4", LatestIP: "3.3.3.3"}

	plan := newPlanner(nil).Plan(cleanClassification(), person)

	if plan.Patch[PropInitialAddress] != "4.4.4.4" {
		t.Error("initial_address should be set when the record has none")
	}
	if plan.Patch[PropLatestAddress] != "4.4.4.4" {
		t.Error("latest_address should update when it differs")
	}
	if plan.Patch[PropLatestNonProxy] != "4.4.4.4" {
		t.Error("clean record should set latest_nonproxy_address")
	}
	if plan.Kind != KindSet {
		t.Errorf("Kind = %v, want set", plan.Kind)
	}
}

func TestPlanInitialAddressNotOverwritten(t *testing.T) {
	person := models.Person{DistinctID: "d", IP: "4.4.4.4", InitialIP: "1.1.1.1", LatestIP: "4.4.4.4", LatestNonProxyIP: "4.4.4.4"}

	plan := newPlanner(map[string]models.Classification{}).Plan(cleanClassification(), person)

	if _, present := plan.Patch[PropInitialAddress]; present {
		t.Error("initial_address must only be set when absent")
	}
}

func TestPlanNoEventForCleanConvergedRecord(t *testing.T) {
	person := models.Person{
		DistinctID: "d", IP: "4.4.4.4",
		InitialIP: "4.4.4.4", LatestIP: "4.4.4.4", LatestNonProxyIP: "4.4.4.4",
	}

	plan := newPlanner(map[string]models.Classification{}).Plan(cleanClassification(), person)

	if plan.Kind != KindNone || len(plan.Patch) != 0 {
		t.Errorf("converged record must produce no event, got kind %v patch %v", plan.Kind, plan.Patch)
	}
	if plan.EffectiveID != "d" {
		t.Errorf("EffectiveID = %q, want unchanged", plan.EffectiveID)
	}
}

func TestLooselyEqual(t *testing.T) {
	tests := []struct {
		name     string
		computed any
		stored   any
		want     bool
	}{
		{"Bool vs string", true, "true", true},
		{"Bool vs numeric", true, float64(1), true},
		{"Bool vs string digit", true, "1", true},
		{"False vs zero", false, float64(0), true},
		{"False vs string zero", false, "0", true},
		{"Different bools", true, false, false},
		{"String match", "Googlebot", "Googlebot", true},
		{"String mismatch", "Googlebot", "Bingbot", false},
		{"Absent stored", "x", nil, false},
		{"Empty string stored", "x", "", false},
		{"Number passthrough", float64(42), "42", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looselyEqual(tt.computed, tt.stored); got != tt.want {
				t.Errorf("looselyEqual(%v, %v) = %v, want %v", tt.computed, tt.stored, got, tt.want)
			}
		})
	}
}
