package fiveforces

import (
	"math"
	"strings"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

// Classification and intensity bounds. Thresholds use strict inequality.
const (
	OpportunityBelow = 4
	RiskAbove        = 7
	MinIntensity     = 1
	MaxIntensity     = 10
	DefaultIntensity = 5

	expansionAbove = 7.0
	selectiveAbove = 5.0
	moderateAbove  = 4.0
)

const (
	CodeExpand           = "posture.expand"
	CodeSelective        = "posture.selective"
	CodeDefensive        = "posture.defensive"
	CodeBuildBarriers    = "entrants.build_barriers"
	CodeMonitorEntrants  = "entrants.monitor"
	CodeDifferentiate    = "rivalry.differentiate"
	CodeLeverageStrength = "rivalry.leverage"
)

var recommendationText = map[string]string{
	CodeExpand:           "Consider aggressive expansion in this attractive market",
	CodeSelective:        "Selective investment with focus on competitive advantages",
	CodeDefensive:        "Defensive strategies and potential market exit consideration",
	CodeBuildBarriers:    "Build strong barriers to entry through brand, patents, or scale",
	CodeMonitorEntrants:  "Monitor new entrant threats and strengthen market position",
	CodeDifferentiate:    "Focus on differentiation and avoid price competition",
	CodeLeverageStrength: "Leverage competitive advantages for market share growth",
}

var priorityActions = []string{
	"Strengthen core competitive advantages",
	"Monitor competitive landscape changes",
	"Develop strategic partnerships",
	"Invest in innovation and R&D",
}

// Attractiveness derives the competitive position from exactly five forces.
// Malformed input is rejected rather than coerced.
func Attractiveness(forces []Force) (Position, error) {
	arranged, err := arrange(forces)
	if err != nil {
		return Position{}, err
	}
	sum := 0
	for _, f := range arranged {
		sum += f.Intensity
	}
	mean := float64(sum) / ForceCount
	attractiveness := round1(10 - mean)

	pos := Position{
		OverallAttractiveness: attractiveness,
		AverageIntensity:      round1(mean),
		Outlook:               outlookFor(attractiveness),
		Opportunities:         []ForceID{},
		RiskAreas:             []ForceID{},
		PriorityActions:       append([]string(nil), priorityActions...),
	}
	for _, f := range arranged {
		switch {
		case f.Intensity < OpportunityBelow:
			pos.Opportunities = append(pos.Opportunities, f.ID)
		case f.Intensity > RiskAbove:
			pos.RiskAreas = append(pos.RiskAreas, f.ID)
		}
	}
	pos.StrategicRecommendations = recommend(attractiveness, arranged)
	return pos, nil
}

func recommend(attractiveness float64, forces [ForceCount]Force) []Recommendation {
	posture := CodeDefensive
	switch {
	case attractiveness > expansionAbove:
		posture = CodeExpand
	case attractiveness > selectiveAbove:
		posture = CodeSelective
	}
	out := []Recommendation{{Code: posture, Text: recommendationText[posture]}}

	entrants := forces[NewEntrants.Index()]
	rivalry := forces[Rivalry.Index()]
	type candidate struct {
		rec  Recommendation
		risk bool
	}
	var specific []candidate
	if entrants.Intensity > RiskAbove {
		specific = append(specific, candidate{Recommendation{Code: CodeBuildBarriers, Force: NewEntrants}, true})
	} else {
		specific = append(specific, candidate{Recommendation{Code: CodeMonitorEntrants, Force: NewEntrants}, false})
	}
	if rivalry.Intensity > RiskAbove {
		specific = append(specific, candidate{Recommendation{Code: CodeDifferentiate, Force: Rivalry}, true})
	} else {
		specific = append(specific, candidate{Recommendation{Code: CodeLeverageStrength, Force: Rivalry}, false})
	}
	for _, risk := range []bool{true, false} {
		for _, c := range specific {
			if c.risk == risk {
				c.rec.Text = recommendationText[c.rec.Code]
				out = append(out, c.rec)
			}
		}
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func outlookFor(attractiveness float64) Outlook {
	switch {
	case attractiveness > expansionAbove:
		return OutlookAttractive
	case attractiveness > moderateAbove:
		return OutlookModerate
	default:
		return OutlookUnattractive
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func IntensityLabel(intensity int) string {
	switch {
	case intensity <= 3:
		return "Low"
	case intensity <= 6:
		return "Medium"
	default:
		return "High"
	}
}

func arrange(forces []Force) ([ForceCount]Force, error) {
	var out [ForceCount]Force
	if len(forces) != ForceCount {
		return out, apperr.Configuration("five_forces", "expected %d forces, got %d", ForceCount, len(forces))
	}
	var seen [ForceCount]bool
	for _, f := range forces {
		idx := f.ID.Index()
		if idx < 0 {
			return out, apperr.Configuration("five_forces", "unknown force %q", f.ID)
		}
		if seen[idx] {
			return out, apperr.Configuration("five_forces", "duplicate force %q", f.ID)
		}
		if err := checkForce(f); err != nil {
			return out, err
		}
		seen[idx] = true
		out[idx] = f
	}
	return out, nil
}

func checkForce(f Force) error {
	if err := checkIntensity(f.ID, f.Intensity); err != nil {
		return err
	}
	for _, factor := range f.Factors {
		if !inVocabulary(f.ID, factor) {
			return apperr.Configuration("factor_vocabulary", "factor %q is not a driver of %s", factor, f.ID)
		}
	}
	return nil
}

func checkIntensity(id ForceID, n int) error {
	if n < MinIntensity || n > MaxIntensity {
		return apperr.Configuration("intensity_range", "force %s intensity %d outside [%d,%d]", id, n, MinIntensity, MaxIntensity)
	}
	return nil
}

func normalizeLines(in []string) []string {
	out := []string{}
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
