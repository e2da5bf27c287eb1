package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/findings"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

var fixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newEngine(opts ...Option) *Engine {
	n := 0
	synth := insight.New(insight.WithClock(clock), insight.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("ins-%d", n)
	}))
	base := []Option{WithClock(clock), WithSynthesizer(synth)}
	return NewEngine(append(base, opts...)...)
}

func sectionsWith(t *testing.T, items map[canvas.SectionID][]string) []canvas.Section {
	t.Helper()
	c, err := canvas.NewDefault(canvas.WithClock(clock))
	if err != nil {
		t.Fatalf("canvas: %v", err)
	}
	for _, id := range canvas.Order() {
		for _, text := range items[id] {
			if _, err := c.AddItem(id, canvas.ItemInput{Text: text}, "tester"); err != nil {
				t.Fatalf("add item: %v", err)
			}
		}
	}
	return c.Sections()
}

func forcesWith(intensities ...int) []fiveforces.Force {
	a := fiveforces.NewAnalysis()
	for i, n := range intensities {
		a.Forces[i].Intensity = n
	}
	return a.List()
}

type stubProvider struct {
	out []insight.RawFinding
	err error
}

func (stubProvider) Name() string { return "stub" }

func (s stubProvider) Fetch(context.Context, findings.Request) ([]insight.RawFinding, error) {
	return s.out, s.err
}

func TestEvaluateEmptyCanvas(t *testing.T) {
	sections := sectionsWith(t, nil)
	ev, err := newEngine().Evaluate(Snapshot{Sections: sections})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want, _ := validation.New().Validate(sections)
	if diff := cmp.Diff(want, ev.Validation); diff != "" {
		t.Fatalf("validation (-want +got):\n%s", diff)
	}
	if ev.Scores.Completion != 0 || ev.Position != nil {
		t.Fatalf("unexpected scores or position: %+v %+v", ev.Scores.Completion, ev.Position)
	}
	for id, h := range ev.Scores.Health {
		if h != 0 {
			t.Fatalf("health[%s] = %d on empty canvas", id, h)
		}
	}
	if len(ev.Insights.Insights) != len(want) {
		t.Fatalf("expected one insight per violation, got %d", len(ev.Insights.Insights))
	}
}

func TestRunCompleteWithProvider(t *testing.T) {
	static, err := findings.NewStatic()
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	engine := newEngine(WithProvider(findings.NewMulti([]findings.Provider{static})))
	snap := Snapshot{
		SessionID: "s1",
		Sections: sectionsWith(t, map[canvas.SectionID][]string{
			canvas.RevenueStreams:    {"Subscriptions"},
			canvas.CustomerSegments:  {"Remote teams"},
			canvas.ValuePropositions: {"Faster planning"},
		}),
		Forces: forcesWith(8, 3, 5, 9, 7),
	}
	var stages []string
	r, err := engine.Run(context.Background(), snap, func(stage, _ string) { stages = append(stages, stage) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{StageValidate, StageScore, StagePosition, StageFindings, StageSynthesize}, stages); diff != "" {
		t.Fatalf("progress (-want +got):\n%s", diff)
	}
	if r.Metadata.Mode != ReportModeComplete || r.Metadata.ExternalCount != 3 {
		t.Fatalf("unexpected metadata: %+v", r.Metadata)
	}
	if len(r.Metadata.Providers) != 1 || r.Metadata.Providers[0].Findings != 3 {
		t.Fatalf("unexpected outcomes: %+v", r.Metadata.Providers)
	}
	if r.Position == nil || r.Position.OverallAttractiveness != 3.6 {
		t.Fatalf("unexpected position: %+v", r.Position)
	}
	found := false
	for _, in := range r.Insights.Insights {
		if in.Title == "Diversification Opportunity" && in.Confidence == 87 && in.Origin == "static" {
			found = true
		}
	}
	if !found {
		t.Fatal("external finding missing from insights")
	}
}

func TestRunDegradesOnProviderFailure(t *testing.T) {
	engine := newEngine(WithProvider(stubProvider{err: errors.New("upstream down")}))
	snap := Snapshot{Sections: sectionsWith(t, nil)}
	r, err := engine.Run(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("degraded run must not fail: %v", err)
	}
	if r.Metadata.Mode != ReportModeDegraded || r.Metadata.StageFailed != StageFindings {
		t.Fatalf("unexpected metadata: %+v", r.Metadata)
	}
	if !strings.Contains(r.Metadata.FailureReason, "upstream down") {
		t.Fatalf("failure reason = %q", r.Metadata.FailureReason)
	}
	if len(r.Insights.Insights) == 0 {
		t.Fatal("internal insights must survive a provider failure")
	}
	if !strings.Contains(BuildMarkdown(r), "Degraded report") {
		t.Fatal("markdown should flag the degraded mode")
	}
}

func TestRunDegradesOnMalformedExternalFinding(t *testing.T) {
	bad := insight.RawFinding{Type: insight.TypeThreat, Section: "channels", Confidence: 140, Impact: insight.ImpactHigh, Title: "Overconfident"}
	engine := newEngine(WithProvider(stubProvider{out: []insight.RawFinding{bad}}))
	r, err := engine.Run(context.Background(), Snapshot{Sections: sectionsWith(t, nil)}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Metadata.Mode != ReportModeDegraded || r.Metadata.ExternalCount != 0 {
		t.Fatalf("unexpected metadata: %+v", r.Metadata)
	}
	for _, in := range r.Insights.Insights {
		if in.Title == "Overconfident" {
			t.Fatal("malformed finding leaked into insights")
		}
	}
}

func TestRunAbortsOnMalformedForces(t *testing.T) {
	snap := Snapshot{Sections: sectionsWith(t, nil), Forces: forcesWith(5, 5, 5, 5, 11)}
	_, err := newEngine().Run(context.Background(), snap, nil)
	if !apperr.IsConfiguration(err) || StageNameFromError(err) != StagePosition {
		t.Fatalf("expected position configuration error, got %v", err)
	}
	_, err = newEngine().Evaluate(Snapshot{Sections: sectionsWith(t, nil)[:8]})
	if !apperr.IsConfiguration(err) || StageNameFromError(err) != StageValidate {
		t.Fatalf("expected validation configuration error, got %v", err)
	}
}

func TestRunWithoutProviderSkipsFindings(t *testing.T) {
	r, err := newEngine().Run(context.Background(), Snapshot{Sections: sectionsWith(t, nil)}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{StagePosition, StageFindings}, r.Metadata.StagesSkipped); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
}

func TestRebuildResponseFromEnvelope(t *testing.T) {
	snap := Snapshot{
		SessionID:     "s2",
		Name:          "Acme Plan",
		CanvasVersion: 4,
		Sections:      sectionsWith(t, map[canvas.SectionID][]string{canvas.KeyPartners: {"Cloud vendor | reseller"}}),
		Forces:        forcesWith(2, 2, 2, 2, 2),
	}
	r, err := newEngine().Run(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	env := BuildResponse(r)
	if env.Attractiveness == nil || *env.Attractiveness != 8 {
		t.Fatalf("attractiveness = %v", env.Attractiveness)
	}
	if !strings.Contains(env.ReportMarkdown, "# Acme Plan") || !strings.Contains(env.ReportMarkdown, `Cloud vendor \| reseller`) {
		t.Fatalf("markdown missing content:\n%s", env.ReportMarkdown)
	}

	blob, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var saved ResponseEnvelope
	if err := json.Unmarshal(blob, &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	saved.ReportMarkdown = ""
	rebuilt, err := RebuildResponseFromEnvelope(saved)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if diff := cmp.Diff(env.ReportMarkdown, rebuilt.ReportMarkdown); diff != "" {
		t.Fatalf("rebuilt markdown differs:\n%s", diff)
	}

	delete(saved.StageOutputs, "snapshot")
	if _, err := RebuildResponseFromEnvelope(saved); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestExports(t *testing.T) {
	snap := Snapshot{Sections: sectionsWith(t, map[canvas.SectionID][]string{
		canvas.ValuePropositions: {"Automated workflow optimization", "Real-time collaboration, tools"},
	})}
	r, err := newEngine().Run(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	csvOut, err := ExportCSV(r)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	if len(lines) != 10 || lines[0] != "Section,Content,Status,Completion" {
		t.Fatalf("unexpected csv:\n%s", csvOut)
	}
	if lines[4] != `Value Propositions,"Automated workflow optimization; Real-time collaboration, tools",draft,40%` {
		t.Fatalf("unexpected value propositions row: %s", lines[4])
	}

	jsonOut, err := ExportJSON(r, fixedNow)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(jsonOut, &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc["version"] != ExportVersion || doc["export_date"] != "2026-04-01T09:30:00Z" || doc["completion_rate"] != float64(25) {
		t.Fatalf("unexpected export header: %v %v %v", doc["version"], doc["export_date"], doc["completion_rate"])
	}
	bmc := doc["business_model_canvas"].(map[string]any)
	vp := bmc["value-propositions"].(map[string]any)
	if vp["completion"] != float64(40) || len(vp["content"].([]any)) != 2 {
		t.Fatalf("unexpected section export: %v", vp)
	}
}
