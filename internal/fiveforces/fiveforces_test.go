package fiveforces

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

func forcesWith(intensities ...int) []Force {
	a := NewAnalysis()
	for i, n := range intensities {
		a.Forces[i].Intensity = n
	}
	return a.List()
}

func codes(recs []Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Code)
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	pos, err := Attractiveness(forcesWith(8, 3, 5, 9, 7))
	if err != nil {
		t.Fatalf("attractiveness: %v", err)
	}
	if pos.OverallAttractiveness != 3.6 {
		t.Fatalf("attractiveness = %v, want 3.6", pos.OverallAttractiveness)
	}
	if pos.AverageIntensity != 6.4 {
		t.Fatalf("average = %v, want 6.4", pos.AverageIntensity)
	}
	if diff := cmp.Diff([]ForceID{SupplierPower}, pos.Opportunities); diff != "" {
		t.Fatalf("opportunities (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ForceID{NewEntrants, Substitutes}, pos.RiskAreas); diff != "" {
		t.Fatalf("risk areas (-want +got):\n%s", diff)
	}
	want := []string{CodeDefensive, CodeBuildBarriers, CodeLeverageStrength}
	if diff := cmp.Diff(want, codes(pos.StrategicRecommendations)); diff != "" {
		t.Fatalf("recommendations (-want +got):\n%s", diff)
	}
	if pos.StrategicRecommendations[0].Text != "Defensive strategies and potential market exit consideration" || pos.StrategicRecommendations[0].Rank != 1 {
		t.Fatalf("unexpected posture: %+v", pos.StrategicRecommendations[0])
	}
	if pos.Outlook != OutlookUnattractive {
		t.Fatalf("outlook = %s", pos.Outlook)
	}
	if len(pos.PriorityActions) != 4 {
		t.Fatalf("expected 4 priority actions, got %v", pos.PriorityActions)
	}
}

func TestThresholdBoundaries(t *testing.T) {
	pos, err := Attractiveness(forcesWith(4, 7, 4, 7, 4))
	if err != nil {
		t.Fatalf("attractiveness: %v", err)
	}
	if len(pos.Opportunities) != 0 || len(pos.RiskAreas) != 0 {
		t.Fatalf("4 and 7 must be neutral: opportunities=%v risks=%v", pos.Opportunities, pos.RiskAreas)
	}
	pos, _ = Attractiveness(forcesWith(3, 8, 3, 8, 3))
	if len(pos.Opportunities) != 3 || len(pos.RiskAreas) != 2 {
		t.Fatalf("3 and 8 must classify: opportunities=%v risks=%v", pos.Opportunities, pos.RiskAreas)
	}
}

func TestPostureBranches(t *testing.T) {
	for _, tc := range []struct {
		name        string
		intensities []int
		posture     string
		outlook     Outlook
		score       float64
	}{
		{"expand", []int{1, 2, 2, 3, 2}, CodeExpand, OutlookAttractive, 8},
		{"boundary seven is selective", []int{3, 3, 3, 3, 3}, CodeSelective, OutlookModerate, 7},
		{"selective", []int{4, 4, 4, 5, 5}, CodeSelective, OutlookModerate, 5.6},
		{"boundary five is defensive", []int{5, 5, 5, 5, 5}, CodeDefensive, OutlookModerate, 5},
		{"defensive", []int{9, 9, 9, 9, 9}, CodeDefensive, OutlookUnattractive, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := Attractiveness(forcesWith(tc.intensities...))
			if err != nil {
				t.Fatalf("attractiveness: %v", err)
			}
			if pos.OverallAttractiveness != tc.score {
				t.Fatalf("score = %v, want %v", pos.OverallAttractiveness, tc.score)
			}
			if pos.StrategicRecommendations[0].Code != tc.posture || pos.Outlook != tc.outlook {
				t.Fatalf("posture=%s outlook=%s", pos.StrategicRecommendations[0].Code, pos.Outlook)
			}
		})
	}
}

func TestRiskRecommendationsRankBeforeMonitoring(t *testing.T) {
	pos, _ := Attractiveness(forcesWith(3, 3, 3, 3, 9))
	want := []string{CodeSelective, CodeDifferentiate, CodeMonitorEntrants}
	if diff := cmp.Diff(want, codes(pos.StrategicRecommendations)); diff != "" {
		t.Fatalf("ranking (-want +got):\n%s", diff)
	}
	for i, r := range pos.StrategicRecommendations {
		if r.Rank != i+1 {
			t.Fatalf("rank %d at position %d", r.Rank, i)
		}
	}
}

func TestAttractivenessIsDeterministic(t *testing.T) {
	forces := forcesWith(2, 6, 9, 1, 10)
	a, _ := Attractiveness(forces)
	b, _ := Attractiveness(forces)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("non-deterministic position:\n%s", diff)
	}
	reordered := []Force{forces[4], forces[2], forces[0], forces[3], forces[1]}
	c, _ := Attractiveness(reordered)
	if diff := cmp.Diff(a, c); diff != "" {
		t.Fatalf("position depends on input order:\n%s", diff)
	}
}

func TestPartialInputIsScoreable(t *testing.T) {
	forces := forcesWith(6, 6, 6, 6, 6)
	for i := range forces {
		forces[i].Factors = nil
		forces[i].Impact = ""
	}
	pos, err := Attractiveness(forces)
	if err != nil || pos.OverallAttractiveness != 4 {
		t.Fatalf("partial input: %v %v", err, pos.OverallAttractiveness)
	}
}

func TestMalformedForcesAreRejected(t *testing.T) {
	cases := map[string][]Force{
		"four forces":   forcesWith(5, 5, 5, 5)[:4],
		"intensity 0":   forcesWith(0, 5, 5, 5, 5),
		"intensity 11":  forcesWith(5, 5, 5, 5, 11),
		"unknown force": append(forcesWith(5, 5, 5, 5, 5)[:4], Force{ID: "regulation", Intensity: 5}),
		"duplicate":     append(forcesWith(5, 5, 5, 5, 5)[:4], Force{ID: NewEntrants, Intensity: 5}),
		"bad factor": func() []Force {
			f := forcesWith(5, 5, 5, 5, 5)
			f[0].Factors = []string{"Weather"}
			return f
		}(),
	}
	for name, forces := range cases {
		if _, err := Attractiveness(forces); !apperr.IsConfiguration(err) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
	var ce *apperr.ConfigurationError
	_, err := Attractiveness(forcesWith(5, 5, 5, 5, 11))
	if !errors.As(err, &ce) || ce.Invariant != "intensity_range" {
		t.Fatalf("expected intensity_range invariant, got %v", err)
	}
}

func TestAnalysisMutations(t *testing.T) {
	a := NewAnalysis()
	if err := a.SetIntensity(Rivalry, 11); !apperr.IsConfiguration(err) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := a.SetIntensity(Rivalry, 8); err != nil {
		t.Fatalf("set intensity: %v", err)
	}
	on, err := a.ToggleFactor(Rivalry, "Exit barriers")
	if err != nil || !on {
		t.Fatalf("toggle on: %v %v", on, err)
	}
	on, _ = a.ToggleFactor(Rivalry, "Exit barriers")
	if on {
		t.Fatal("second toggle should deselect")
	}
	if _, err := a.ToggleFactor(Rivalry, "Capital requirements"); !apperr.IsConfiguration(err) {
		t.Fatalf("factor from another force should be rejected, got %v", err)
	}

	intensity := 2
	factors := []string{"Supplier concentration", "Supplier concentration"}
	impact := "  Few chip vendors "
	f, err := a.Apply(SupplierPower, Update{Intensity: &intensity, Factors: &factors, Impact: &impact})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.Intensity != 2 || len(f.Factors) != 1 || f.Impact != "Few chip vendors" {
		t.Fatalf("unexpected force after apply: %+v", f)
	}

	bad := 0
	before := a.Forces[SupplierPower.Index()]
	if _, err := a.Apply(SupplierPower, Update{Impact: &impact, Intensity: &bad}); !apperr.IsConfiguration(err) {
		t.Fatalf("expected range error, got %v", err)
	}
	if diff := cmp.Diff(before, a.Forces[SupplierPower.Index()]); diff != "" {
		t.Fatalf("failed apply must not change the force:\n%s", diff)
	}
	if _, err := a.Apply("unknown", Update{}); !apperr.IsConfiguration(err) {
		t.Fatalf("unknown force should fail, got %v", err)
	}

	pos, err := a.Position()
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if diff := cmp.Diff([]ForceID{SupplierPower}, pos.Opportunities); diff != "" {
		t.Fatalf("opportunities (-want +got):\n%s", diff)
	}
}

func TestIntensityLabel(t *testing.T) {
	for n, want := range map[int]string{1: "Low", 3: "Low", 4: "Medium", 6: "Medium", 7: "High", 10: "High"} {
		if got := IntensityLabel(n); got != want {
			t.Fatalf("IntensityLabel(%d) = %s, want %s", n, got, want)
		}
	}
	if len(Vocabulary(Substitutes)) != 8 {
		t.Fatalf("expected 8 substitute factors")
	}
}
