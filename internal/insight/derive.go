package insight

import (
	"fmt"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

const (
	// SectionFiveForces is the insight section used for whole-analysis
	// findings such as the strategic posture.
	SectionFiveForces = "five-forces"

	engineConfidence = 100
	thinHealthBelow  = 70
)

func ForceSection(id fiveforces.ForceID) string { return "force:" + string(id) }

// Derive turns validation, health and position results into findings.
// Titles and descriptions come from fixed templates or the results
// themselves.
func Derive(results []validation.Result, health map[canvas.SectionID]int, pos *fiveforces.Position) []RawFinding {
	var out []RawFinding
	out = append(out, FromValidation(results)...)
	out = append(out, FromHealth(health)...)
	if pos != nil {
		out = append(out, FromPosition(*pos)...)
	}
	return out
}

func FromValidation(results []validation.Result) []RawFinding {
	out := make([]RawFinding, 0, len(results))
	for _, r := range results {
		f := RawFinding{
			Type:        TypeWarning,
			Section:     string(r.Section),
			Confidence:  engineConfidence,
			Impact:      ImpactMedium,
			Title:       r.Message,
			Description: r.Rule.Message,
			Evidence:    []string{"rule:" + r.Rule.ID},
			Sources:     []string{"validation"},
			Origin:      OriginEngine,
		}
		switch r.Severity {
		case canvas.SeverityError:
			f.Impact = ImpactHigh
		case canvas.SeverityInfo:
			f.Type = TypeSuggestion
			f.Impact = ImpactLow
		}
		for _, rel := range r.Related {
			f.Evidence = append(f.Evidence, "related:"+string(rel))
		}
		out = append(out, f)
	}
	return out
}

// FromHealth emits a validation finding for fully developed sections and a
// depth suggestion for sections that have started but remain thin.
func FromHealth(health map[canvas.SectionID]int) []RawFinding {
	var out []RawFinding
	for _, id := range canvas.Order() {
		h, ok := health[id]
		if !ok {
			continue
		}
		switch {
		case h >= 100:
			out = append(out, RawFinding{
				Type:        TypeValidation,
				Section:     string(id),
				Confidence:  engineConfidence,
				Impact:      ImpactLow,
				Title:       "Section fully developed",
				Description: "Content, depth, discussion and supporting material are all present.",
				Evidence:    []string{"health_checklist"},
				Sources:     []string{"health"},
				Origin:      OriginEngine,
			})
		case h > 0 && h < thinHealthBelow:
			out = append(out, RawFinding{
				Type:        TypeSuggestion,
				Section:     string(id),
				Confidence:  engineConfidence,
				Impact:      ImpactLow,
				Title:       "Section needs more depth",
				Description: fmt.Sprintf("Health score is %d of 100.", h),
				Action:      "Add supporting items, comments or attachments.",
				Evidence:    []string{"health_checklist"},
				Sources:     []string{"health"},
				Origin:      OriginEngine,
			})
		}
	}
	return out
}

func FromPosition(pos fiveforces.Position) []RawFinding {
	var out []RawFinding
	for _, id := range pos.Opportunities {
		out = append(out, RawFinding{
			Type:        TypeOpportunity,
			Section:     ForceSection(id),
			Confidence:  engineConfidence,
			Impact:      ImpactMedium,
			Title:       "Low pressure: " + id.Name(),
			Description: fmt.Sprintf("Intensity is below %d.", fiveforces.OpportunityBelow),
			Evidence:    []string{"classification:opportunity"},
			Sources:     []string{"five_forces"},
			Origin:      OriginEngine,
		})
	}
	for _, id := range pos.RiskAreas {
		out = append(out, RawFinding{
			Type:        TypeThreat,
			Section:     ForceSection(id),
			Confidence:  engineConfidence,
			Impact:      ImpactHigh,
			Title:       "High pressure: " + id.Name(),
			Description: fmt.Sprintf("Intensity is above %d.", fiveforces.RiskAbove),
			Evidence:    []string{"classification:risk"},
			Sources:     []string{"five_forces"},
			Origin:      OriginEngine,
		})
	}
	risky := map[fiveforces.ForceID]bool{}
	for _, id := range pos.RiskAreas {
		risky[id] = true
	}
	for _, rec := range pos.StrategicRecommendations {
		f := RawFinding{
			Type:       TypeSuggestion,
			Section:    SectionFiveForces,
			Confidence: engineConfidence,
			Impact:     ImpactHigh,
			Title:      rec.Text,
			Action:     rec.Text,
			Evidence:   []string{"recommendation:" + rec.Code},
			Sources:    []string{"five_forces"},
			Origin:     OriginEngine,
		}
		if rec.Force != "" {
			f.Section = ForceSection(rec.Force)
			if !risky[rec.Force] {
				f.Impact = ImpactLow
			}
		}
		out = append(out, f)
	}
	return out
}
