package assessment

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
)

const (
	outputSnapshot   = "snapshot"
	outputValidation = "validation"
	outputScores     = "scores"
	outputPosition   = "position"
	outputInsights   = "insights"
)

func BuildResponse(r Report) ResponseEnvelope {
	env := ResponseEnvelope{
		SessionID:    r.Snapshot.SessionID,
		Completion:   r.Scores.Completion,
		ReportMode:   r.Metadata.Mode,
		StageOutputs: map[string]any{},
		Metadata:     r.Metadata,
		Disclaimer:   Disclaimer,
	}
	env.StageOutputs[outputSnapshot] = r.Snapshot
	env.StageOutputs[outputValidation] = r.Validation
	env.StageOutputs[outputScores] = r.Scores
	if r.Position != nil {
		env.StageOutputs[outputPosition] = r.Position
		v := r.Position.OverallAttractiveness
		env.Attractiveness = &v
	}
	env.StageOutputs[outputInsights] = r.Insights
	env.ReportMarkdown = BuildMarkdown(r)
	return env
}

// BuildMarkdown renders the report. The output depends only on r.
func BuildMarkdown(r Report) string {
	var b strings.Builder
	title := strings.TrimSpace(r.Snapshot.Name)
	if title == "" {
		title = "Strategic Assessment Report"
	}
	fmt.Fprintf(&b, "# %s\n\n", sanitize(title))
	if r.Snapshot.SessionID != "" {
		fmt.Fprintf(&b, "- Session: %s\n", sanitize(r.Snapshot.SessionID))
	}
	if r.Snapshot.Industry != "" {
		fmt.Fprintf(&b, "- Industry: %s\n", sanitize(r.Snapshot.Industry))
	}
	fmt.Fprintf(&b, "- Canvas version: %d\n", r.Snapshot.CanvasVersion)
	if !r.Metadata.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", r.Metadata.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Mode: %s\n", modeOrComplete(r.Metadata.Mode))
	fmt.Fprintf(&b, "- Canvas completion: %d%%\n\n", r.Scores.Completion)

	if r.Metadata.Mode == ReportModeDegraded {
		fmt.Fprintf(&b, "> **Degraded report.** Stage `%s` did not complete: %s. Internal results below are complete.\n\n",
			r.Metadata.StageFailed, sanitize(r.Metadata.FailureReason))
	}

	writeCanvas(&b, r)
	writeValidation(&b, r)
	writePosition(&b, r.Position, r.Snapshot.Forces)
	writeInsights(&b, r.Insights.Insights)

	fmt.Fprintf(&b, "## Disclaimer\n\n%s\n", Disclaimer)
	return b.String()
}

func writeCanvas(b *strings.Builder, r Report) {
	fmt.Fprintf(b, "## Business Model Canvas\n\n")
	fmt.Fprintf(b, "| Section | Status | Items | Health | Band |\n")
	fmt.Fprintf(b, "|---|---|---:|---:|---|\n")
	for _, s := range r.Scores.Sections {
		fmt.Fprintf(b, "| %s | %s | %d | %d%% | %s |\n", sanitize(s.Title), s.Status, s.Items, s.Health, s.Band)
	}
	fmt.Fprintf(b, "\n")
	for _, s := range orderedSections(r.Snapshot.Sections) {
		texts := s.Texts()
		if len(texts) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", sanitize(s.Title))
		for _, t := range texts {
			fmt.Fprintf(b, "- %s\n", sanitize(t))
		}
		fmt.Fprintf(b, "\n")
	}
}

func writeValidation(b *strings.Builder, r Report) {
	fmt.Fprintf(b, "## Validation\n\n")
	if len(r.Validation) == 0 {
		fmt.Fprintf(b, "No rule violations.\n\n")
		return
	}
	for _, v := range r.Validation {
		fmt.Fprintf(b, "- **%s** %s\n", strings.ToUpper(string(v.Severity)), sanitize(v.Message))
	}
	fmt.Fprintf(b, "\n")
}

func writePosition(b *strings.Builder, pos *fiveforces.Position, forces []fiveforces.Force) {
	fmt.Fprintf(b, "## Competitive Position\n\n")
	if pos == nil {
		fmt.Fprintf(b, "Five forces analysis not provided.\n\n")
		return
	}
	fmt.Fprintf(b, "- Overall attractiveness: %.1f / 10 (%s)\n", pos.OverallAttractiveness, pos.Outlook)
	fmt.Fprintf(b, "- Average intensity: %.1f\n\n", pos.AverageIntensity)
	fmt.Fprintf(b, "| Force | Intensity | Level |\n")
	fmt.Fprintf(b, "|---|---:|---|\n")
	byID := map[fiveforces.ForceID]fiveforces.Force{}
	for _, f := range forces {
		byID[f.ID] = f
	}
	for _, id := range fiveforces.Order() {
		f, ok := byID[id]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "| %s | %d | %s |\n", id.Name(), f.Intensity, fiveforces.IntensityLabel(f.Intensity))
	}
	fmt.Fprintf(b, "\n")
	if len(pos.Opportunities) > 0 {
		fmt.Fprintf(b, "**Opportunities:** %s\n\n", forceNames(pos.Opportunities))
	}
	if len(pos.RiskAreas) > 0 {
		fmt.Fprintf(b, "**Risk areas:** %s\n\n", forceNames(pos.RiskAreas))
	}
	fmt.Fprintf(b, "### Strategic Recommendations\n\n")
	for _, rec := range pos.StrategicRecommendations {
		fmt.Fprintf(b, "%d. %s\n", rec.Rank, sanitize(rec.Text))
	}
	fmt.Fprintf(b, "\n")
	if len(pos.PriorityActions) > 0 {
		fmt.Fprintf(b, "### Priority Actions\n\n")
		for _, a := range pos.PriorityActions {
			fmt.Fprintf(b, "- %s\n", sanitize(a))
		}
		fmt.Fprintf(b, "\n")
	}
}

func writeInsights(b *strings.Builder, list []insight.Insight) {
	fmt.Fprintf(b, "## Insights\n\n")
	if len(list) == 0 {
		fmt.Fprintf(b, "No insights.\n\n")
		return
	}
	for _, in := range list {
		fmt.Fprintf(b, "### %s\n\n", sanitize(in.Title))
		fmt.Fprintf(b, "- Type: %s\n", in.Type)
		fmt.Fprintf(b, "- Section: %s\n", sanitize(in.Section))
		fmt.Fprintf(b, "- Impact: %s\n", in.Impact)
		fmt.Fprintf(b, "- Confidence: %d%%\n", in.Confidence)
		if in.Origin != "" && in.Origin != insight.OriginEngine {
			fmt.Fprintf(b, "- Origin: %s (unverified)\n", sanitize(in.Origin))
		}
		if d := strings.TrimSpace(in.Description); d != "" {
			fmt.Fprintf(b, "\n%s\n", sanitize(d))
		}
		if a := strings.TrimSpace(in.Action); a != "" && a != in.Title {
			fmt.Fprintf(b, "\n**Action:** %s\n", sanitize(a))
		}
		if len(in.Evidence) > 0 {
			fmt.Fprintf(b, "\nEvidence:\n")
			for _, e := range in.Evidence {
				fmt.Fprintf(b, "- %s\n", sanitize(e))
			}
		}
		fmt.Fprintf(b, "\n")
	}
}

func forceNames(ids []fiveforces.ForceID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name())
	}
	return strings.Join(names, ", ")
}

func orderedSections(sections []canvas.Section) []canvas.Section {
	byID := map[canvas.SectionID]canvas.Section{}
	for _, s := range sections {
		byID[s.ID] = s
	}
	out := make([]canvas.Section, 0, len(sections))
	for _, id := range canvas.Order() {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func modeOrComplete(m ReportMode) ReportMode {
	if m == "" {
		return ReportModeComplete
	}
	return m
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}
