package canvas

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

func newTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	c, err := NewDefault(
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	if err != nil {
		t.Fatalf("new canvas: %v", err)
	}
	return c
}

func TestDefaultDefinitionsMatchDisplayOrder(t *testing.T) {
	defs, err := DefaultDefinitions()
	if err != nil {
		t.Fatalf("default definitions: %v", err)
	}
	if len(defs) != SectionCount {
		t.Fatalf("expected %d sections, got %d", SectionCount, len(defs))
	}
	for i, d := range defs {
		if d.ID != Order()[i] {
			t.Fatalf("section %d: got %s want %s", i, d.ID, Order()[i])
		}
	}
	vp := defs[ValuePropositions.Index()]
	if vp.CompletionWeight != 25 {
		t.Fatalf("value propositions weight = %d", vp.CompletionWeight)
	}
	if len(vp.Rules) != 1 || vp.Rules[0].Type != RuleRequired || vp.Rules[0].Severity != SeverityError {
		t.Fatalf("unexpected value proposition rules: %+v", vp.Rules)
	}
	ka := defs[KeyActivities.Index()]
	if n, err := ka.Rules[0].Count(); err != nil || n != 2 {
		t.Fatalf("key activities min_length = %d, %v", n, err)
	}
}

func TestNewCanvasStartsEmpty(t *testing.T) {
	c := newTestCanvas(t)
	for _, s := range c.Sections() {
		if s.Status != StatusEmpty || s.HasContent() || s.Version != 1 {
			t.Fatalf("section %s not empty at start: %+v", s.ID, s)
		}
	}
}

func TestAddItemBumpsVersionAndStatus(t *testing.T) {
	c := newTestCanvas(t)
	it, err := c.AddItem(CustomerSegments, ItemInput{Text: "  B2B SaaS buyers "}, "ana")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if it.Text != "B2B SaaS buyers" || it.Priority != PriorityMedium || it.Confidence != DefaultConfidence || it.Risk != DefaultRisk {
		t.Fatalf("unexpected item defaults: %+v", it)
	}
	s, _ := c.Section(CustomerSegments)
	if s.Status != StatusDraft || s.Version != 2 || s.UpdatedBy != "ana" {
		t.Fatalf("unexpected section after add: status=%s version=%d by=%s", s.Status, s.Version, s.UpdatedBy)
	}
	if len(s.History) != 1 || s.History[0].Action != "add_item" || s.History[0].Version != 2 {
		t.Fatalf("unexpected history: %+v", s.History)
	}

	if _, err := c.RemoveItem(CustomerSegments, it.ID, "ana"); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	s, _ = c.Section(CustomerSegments)
	if s.Status != StatusEmpty || s.Version != 3 {
		t.Fatalf("expected empty status and version 3, got %s %d", s.Status, s.Version)
	}
}

func TestAddItemRejectsBlankAndOutOfRange(t *testing.T) {
	c := newTestCanvas(t)
	if _, err := c.AddItem(Channels, ItemInput{Text: "   "}, ""); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for blank text, got %v", err)
	}
	bad := 120
	if _, err := c.AddItem(Channels, ItemInput{Text: "Web", Confidence: &bad}, ""); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for confidence 120, got %v", err)
	}
	s, _ := c.Section(Channels)
	if s.Version != 1 || s.HasContent() {
		t.Fatalf("rejected edits must not change the section: %+v", s)
	}
}

func TestUnknownSectionIsConfigurationError(t *testing.T) {
	c := newTestCanvas(t)
	_, err := c.AddItem(SectionID("brand-story"), ItemInput{Text: "x"}, "")
	var ce *apperr.ConfigurationError
	if !errors.As(err, &ce) || ce.Invariant != "nine_sections" {
		t.Fatalf("expected nine_sections configuration error, got %v", err)
	}
}

func TestUpdateItemKeepsUnsetFields(t *testing.T) {
	c := newTestCanvas(t)
	it, _ := c.AddItem(KeyResources, ItemInput{Text: "Patents", Tags: []string{"ip", "ip", " legal "}}, "")
	high := 90
	got, err := c.UpdateItem(KeyResources, it.ID, ItemInput{Impact: &high, Priority: PriorityCritical}, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Text != "Patents" || got.Impact != 90 || got.Priority != PriorityCritical {
		t.Fatalf("unexpected update result: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "ip" || got.Tags[1] != "legal" {
		t.Fatalf("tags should be a trimmed set: %v", got.Tags)
	}
	if _, err := c.UpdateItem(KeyResources, "missing", ItemInput{Text: "x"}, ""); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestReplaceContentSplitsLines(t *testing.T) {
	c := newTestCanvas(t)
	s, err := c.ReplaceContent(KeyActivities, []string{"Platform development\n\n  Customer support  ", ""}, "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s.ItemCount() != 2 || s.Content[1].Text != "Customer support" || s.Status != StatusDraft {
		t.Fatalf("unexpected content: %+v", s.Content)
	}
	s, _ = c.ReplaceContent(KeyActivities, nil, "")
	if s.Status != StatusEmpty || s.HasContent() {
		t.Fatalf("empty save should leave the section empty: %+v", s)
	}
}

func TestSetStatusRespectsInvariant(t *testing.T) {
	c := newTestCanvas(t)
	if _, err := c.SetStatus(CostStructure, StatusApproved, ""); !apperr.IsConfiguration(err) {
		t.Fatalf("approving an empty section should fail, got %v", err)
	}
	_, _ = c.ReplaceContent(CostStructure, []string{"Cloud hosting"}, "")
	s, err := c.SetStatus(CostStructure, StatusReview, "lead")
	if err != nil || s.Status != StatusReview {
		t.Fatalf("set review: %v %+v", err, s.Status)
	}
	s, _ = c.ClearSection(CostStructure, "")
	if s.Status != StatusEmpty {
		t.Fatalf("clear should reset status, got %s", s.Status)
	}
}

func TestCommentsAndAttachmentsDoNotCreateContent(t *testing.T) {
	c := newTestCanvas(t)
	cm, err := c.AddComment(Channels, "ana", "Check partner stores", "")
	if err != nil || cm.Type != CommentPlain || cm.Resolved {
		t.Fatalf("add comment: %v %+v", err, cm)
	}
	if _, err := c.AddAttachment(Channels, "survey.pdf", "", ""); err != nil {
		t.Fatalf("attach: %v", err)
	}
	s, err := c.ResolveComment(Channels, cm.ID, "ana")
	if err != nil || !s.Comments[0].Resolved {
		t.Fatalf("resolve: %v", err)
	}
	if s.Status != StatusEmpty || s.Version != 4 {
		t.Fatalf("expected empty status at version 4, got %s %d", s.Status, s.Version)
	}
}

func TestApplyPreset(t *testing.T) {
	c := newTestCanvas(t)
	changed, err := c.ApplyPreset("saas-startup", "")
	if err != nil {
		t.Fatalf("apply preset: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("expected 3 changed sections, got %d", len(changed))
	}
	vp, _ := c.Section(ValuePropositions)
	if vp.Texts()[0] != "Automated workflow optimization" {
		t.Fatalf("unexpected preset content: %v", vp.Texts())
	}
	if _, err := c.ApplyPreset("nope", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFromSectionsRoundTripAndInvariants(t *testing.T) {
	c := newTestCanvas(t)
	_, _ = c.ReplaceContent(RevenueStreams, []string{"Subscriptions"}, "")
	sections := c.Sections()

	back, err := FromSections(sections)
	if err != nil {
		t.Fatalf("from sections: %v", err)
	}
	rs, _ := back.Section(RevenueStreams)
	if rs.Texts()[0] != "Subscriptions" || rs.Version != 2 {
		t.Fatalf("round trip lost state: %+v", rs)
	}

	if _, err := FromSections(sections[:8]); !apperr.IsConfiguration(err) {
		t.Fatalf("expected configuration error for 8 sections, got %v", err)
	}
	broken := c.Sections()
	broken[RevenueStreams.Index()].Status = StatusEmpty
	if _, err := FromSections(broken); !apperr.IsConfiguration(err) {
		t.Fatalf("expected status invariant error, got %v", err)
	}
	dup := c.Sections()
	dup[0] = dup[1]
	if _, err := FromSections(dup); !apperr.IsConfiguration(err) {
		t.Fatalf("expected duplicate section error, got %v", err)
	}
}

func TestParseDefinitionsRejectsBadRules(t *testing.T) {
	defs, _ := DefaultDefinitions()
	defs[0].Rules = append(defs[0].Rules, Rule{ID: "bad", Type: RulePattern, Value: "(", Severity: SeverityInfo})
	if _, err := CheckDefinitions(defs); !apperr.IsConfiguration(err) {
		t.Fatalf("expected pattern configuration error, got %v", err)
	}
	defs, _ = DefaultDefinitions()
	defs[2].CompletionWeight = 0
	if _, err := CheckDefinitions(defs); !apperr.IsConfiguration(err) {
		t.Fatalf("expected weight configuration error, got %v", err)
	}
}

func TestMarshalDefinitionsRoundTrip(t *testing.T) {
	defs, _ := DefaultDefinitions()
	blob, err := MarshalDefinitions(defs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := ParseDefinitions(blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back[KeyPartners.Index()].Rules[0].Severity != SeverityWarning {
		t.Fatalf("unexpected severity after round trip: %+v", back[0].Rules)
	}
}
