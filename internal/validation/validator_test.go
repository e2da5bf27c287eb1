package validation

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
)

func emptySections(t *testing.T) []canvas.Section {
	t.Helper()
	c, err := canvas.NewDefault()
	if err != nil {
		t.Fatalf("new canvas: %v", err)
	}
	return c.Sections()
}

func withContent(sections []canvas.Section, id canvas.SectionID, texts ...string) []canvas.Section {
	idx := id.Index()
	items := make([]canvas.Item, 0, len(texts))
	for _, t := range texts {
		items = append(items, canvas.Item{Text: t, Priority: canvas.PriorityMedium, Status: canvas.ItemActive})
	}
	sections[idx].Content = items
	if len(items) > 0 {
		sections[idx].Status = canvas.StatusDraft
	}
	return sections
}

func crossSectionResults(results []Result) []Result {
	var out []Result
	for _, r := range results {
		for _, rel := range r.Related {
			if rel == canvas.CustomerSegments {
				out = append(out, r)
			}
		}
	}
	return out
}

func TestEmptyCanvasYieldsOnlyRequiredViolations(t *testing.T) {
	results, err := New().Validate(emptySections(t))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	got := make([]canvas.SectionID, 0, len(results))
	for _, r := range results {
		got = append(got, r.Section)
	}
	want := []canvas.SectionID{
		canvas.KeyPartners,
		canvas.KeyActivities,
		canvas.KeyResources,
		canvas.ValuePropositions,
		canvas.CustomerSegments,
		canvas.RevenueStreams,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result sections (-want +got):\n%s", diff)
	}
	if results[0].Severity != canvas.SeverityWarning || results[0].Message != "Key Partners: At least one key partner is required" {
		t.Fatalf("unexpected key partners result: %+v", results[0])
	}
	if results[1].Message != "Key Activities: At least 2 key activities recommended" || results[1].Severity != canvas.SeverityInfo {
		t.Fatalf("unexpected min_length result: %+v", results[1])
	}
	if len(crossSectionResults(results)) != 0 {
		t.Fatal("cross-section rule must not fire when both sections are empty")
	}
}

func TestCrossSectionRuleFiresOnce(t *testing.T) {
	sections := withContent(emptySections(t), canvas.CustomerSegments, "B2B SaaS buyers")
	results, err := New().Validate(sections)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	cross := crossSectionResults(results)
	if len(cross) != 1 {
		t.Fatalf("expected one cross-section result, got %d: %+v", len(cross), cross)
	}
	if cross[0].Severity != canvas.SeverityWarning || cross[0].Section != canvas.ValuePropositions {
		t.Fatalf("unexpected cross-section result: %+v", cross[0])
	}

	sections = withContent(sections, canvas.ValuePropositions, "Faster onboarding")
	results, _ = New().Validate(sections)
	if len(crossSectionResults(results)) != 0 {
		t.Fatal("cross-section rule must clear once value propositions exist")
	}
}

func TestCrossSectionFollowsValuePropositionRules(t *testing.T) {
	sections := withContent(emptySections(t), canvas.CustomerSegments, "Remote teams")
	results, _ := New().Validate(sections)
	var ids []string
	for _, r := range results {
		if r.Section == canvas.ValuePropositions {
			ids = append(ids, r.Rule.ID)
		}
	}
	want := []string{"value-propositions-required", CrossSectionRuleID}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("value proposition result order (-want +got):\n%s", diff)
	}
}

func TestLengthAndPatternRules(t *testing.T) {
	sections := emptySections(t)
	idx := canvas.Channels.Index()
	sections[idx].Rules = []canvas.Rule{
		{ID: "ch-max", Type: canvas.RuleMaxLength, Value: "2", Message: "No more than {value} channels", Severity: canvas.SeverityInfo},
		{ID: "ch-web", Type: canvas.RulePattern, Value: "(?i)web", Message: "Include a web channel for {section}", Severity: canvas.SeverityWarning},
	}
	sections = withContent(sections, canvas.Channels, "Retail stores", "Partner stores", "Sales force")

	results, err := New().Validate(sections)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var msgs []string
	for _, r := range results {
		if r.Section == canvas.Channels {
			msgs = append(msgs, r.Message)
		}
	}
	want := []string{
		"Channels: No more than 2 channels",
		"Channels: Include a web channel for Channels",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Fatalf("channel messages (-want +got):\n%s", diff)
	}

	sections = withContent(sections, canvas.Channels, "Web sales")
	results, _ = New().Validate(sections)
	for _, r := range results {
		if r.Section == canvas.Channels {
			t.Fatalf("expected channels to pass, got %+v", r)
		}
	}
}

func TestBlankItemsAreNotCounted(t *testing.T) {
	sections := withContent(emptySections(t), canvas.KeyResources, "   ")
	sections[canvas.KeyResources.Index()].Status = canvas.StatusEmpty
	results, _ := New().Validate(sections)
	found := false
	for _, r := range results {
		if r.Rule.ID == "key-resources-required" {
			found = true
		}
	}
	if !found {
		t.Fatal("blank items must not satisfy a required rule")
	}
}

func TestRequiredRuleCanBeDisabled(t *testing.T) {
	sections := emptySections(t)
	sections[canvas.KeyPartners.Index()].Rules[0].Value = "false"
	results, _ := New().Validate(sections)
	for _, r := range results {
		if r.Section == canvas.KeyPartners {
			t.Fatalf("disabled required rule fired: %+v", r)
		}
	}
}

func TestCustomPredicateExtensionPoint(t *testing.T) {
	sections := emptySections(t)
	idx := canvas.CostStructure.Index()
	sections[idx].Rules = []canvas.Rule{{ID: "costs-cover-resources", Type: canvas.RuleCustom, Message: "Cost structure should reflect key resources", Severity: canvas.SeverityWarning}}
	sections = withContent(sections, canvas.KeyResources, "Data centre")

	v := New()
	if _, err := v.Validate(sections); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for unregistered custom rule, got %v", err)
	}

	v.Register("costs-cover-resources", func(s canvas.Section, all []canvas.Section) bool {
		return s.HasContent() || !all[canvas.KeyResources.Index()].HasContent()
	})
	results, err := v.Validate(sections)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	fired := false
	for _, r := range results {
		if r.Rule.ID == "costs-cover-resources" {
			fired = true
		}
	}
	if !fired {
		t.Fatal("custom predicate should have failed")
	}
}

func TestMalformedInputIsRejected(t *testing.T) {
	sections := emptySections(t)
	if _, err := New().Validate(sections[:5]); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for 5 sections, got %v", err)
	}
	dup := emptySections(t)
	dup[8] = dup[0]
	if _, err := New().Validate(dup); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for duplicate section, got %v", err)
	}
	bad := emptySections(t)
	bad[0].Rules = []canvas.Rule{{ID: "p", Type: canvas.RulePattern, Value: "[", Severity: canvas.SeverityInfo}}
	if _, err := New().Validate(bad); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for bad pattern, got %v", err)
	}
}

func TestValidateIsOrderIndependentAndIdempotent(t *testing.T) {
	sections := withContent(emptySections(t), canvas.CustomerSegments, "SMBs")
	v := New()
	first, _ := v.Validate(sections)

	reversed := make([]canvas.Section, len(sections))
	for i := range sections {
		reversed[len(sections)-1-i] = sections[i]
	}
	second, _ := v.Validate(reversed)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("validation depends on input order (-first +second):\n%s", diff)
	}
	if counts := CountBySeverity(first); counts[canvas.SeverityError] != 3 || counts[canvas.SeverityWarning] != 2 {
		t.Fatalf("unexpected severity counts: %v", counts)
	}
}

func FuzzValidateDoesNotPanic(f *testing.F) {
	f.Add("B2B buyers\nSMBs", "", "web")
	f.Add("", "Faster onboarding", "[")
	f.Fuzz(func(t *testing.T, segments, props, pattern string) {
		c, err := canvas.NewDefault()
		if err != nil {
			t.Fatalf("new canvas: %v", err)
		}
		_, _ = c.ReplaceContent(canvas.CustomerSegments, []string{segments}, "")
		_, _ = c.ReplaceContent(canvas.ValuePropositions, []string{props}, "")
		sections := c.Sections()
		sections[canvas.Channels.Index()].Rules = []canvas.Rule{{ID: "fz", Type: canvas.RulePattern, Value: pattern, Severity: canvas.SeverityInfo}}
		results, err := New().Validate(sections)
		if err != nil {
			if !apperr.IsConfiguration(err) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		for _, r := range results {
			if !strings.Contains(r.Message, ":") && r.Rule.ID != CrossSectionRuleID {
				t.Fatalf("message missing section prefix: %q", r.Message)
			}
		}
	})
}
