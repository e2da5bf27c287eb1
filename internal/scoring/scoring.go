package scoring

import (
	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
)

// Weights are the health checklist point values. DepthItems is the item
// count at which the depth bonus applies.
type Weights struct {
	ContentPresent int `json:"content_present" yaml:"content_present"`
	ContentDepth   int `json:"content_depth" yaml:"content_depth"`
	DepthItems     int `json:"depth_items" yaml:"depth_items"`
	Commented      int `json:"commented" yaml:"commented"`
	Attached       int `json:"attached" yaml:"attached"`
}

var DefaultWeights = Weights{
	ContentPresent: 40,
	ContentDepth:   30,
	DepthItems:     3,
	Commented:      15,
	Attached:       15,
}

const (
	MaxHealth     = 100
	MaxCompletion = 100
)

type Band string

const (
	BandStrong     Band = "strong"
	BandSolid      Band = "solid"
	BandDeveloping Band = "developing"
	BandWeak       Band = "weak"
	BandEmpty      Band = "empty"
)

type SectionScore struct {
	Section canvas.SectionID `json:"section"`
	Title   string           `json:"title"`
	Status  canvas.Status    `json:"status"`
	Items   int              `json:"items"`
	Weight  int              `json:"weight"`
	Health  int              `json:"health"`
	Band    Band             `json:"band"`
}

type Summary struct {
	Completion int                      `json:"completion"`
	Health     map[canvas.SectionID]int `json:"health"`
	Sections   []SectionScore           `json:"sections"`
}

type Scorer struct {
	weights Weights
}

// NewScorer rejects weights that could make an additive edit lower health.
func NewScorer(w Weights) (Scorer, error) {
	if err := w.Check(); err != nil {
		return Scorer{}, err
	}
	return Scorer{weights: w}, nil
}

// Check requires non-negative point values with at least one positive, and
// a depth threshold of at least one item.
func (w Weights) Check() error {
	points := []struct {
		name  string
		value int
	}{
		{"content_present", w.ContentPresent},
		{"content_depth", w.ContentDepth},
		{"commented", w.Commented},
		{"attached", w.Attached},
	}
	total := 0
	for _, p := range points {
		if p.value < 0 {
			return apperr.Configuration("health_weights", "%s weight must not be negative, got %d", p.name, p.value)
		}
		total += p.value
	}
	if total == 0 {
		return apperr.Configuration("health_weights", "at least one health weight must be positive")
	}
	if w.DepthItems < 1 {
		return apperr.Configuration("health_weights", "depth_items must be at least 1, got %d", w.DepthItems)
	}
	return nil
}

func Default() Scorer { return Scorer{weights: DefaultWeights} }

// Completion sums the weights of sections holding at least one counted
// item. Comments and attachments never count toward completion.
func (Scorer) Completion(sections []canvas.Section) int {
	total := 0
	for _, s := range sections {
		if s.HasContent() {
			total += s.CompletionWeight
		}
	}
	if total > MaxCompletion {
		return MaxCompletion
	}
	return total
}

func (sc Scorer) Health(s canvas.Section) int {
	w := sc.weights
	score := 0
	n := s.ItemCount()
	if n > 0 {
		score += w.ContentPresent
	}
	if n >= w.DepthItems && n > 0 {
		score += w.ContentDepth
	}
	if len(s.Comments) > 0 {
		score += w.Commented
	}
	if len(s.Attachments) > 0 {
		score += w.Attached
	}
	if score > MaxHealth {
		return MaxHealth
	}
	if score < 0 {
		return 0
	}
	return score
}

func (sc Scorer) HealthMap(sections []canvas.Section) map[canvas.SectionID]int {
	out := make(map[canvas.SectionID]int, len(sections))
	for _, s := range sections {
		out[s.ID] = sc.Health(s)
	}
	return out
}

func (sc Scorer) Summarize(sections []canvas.Section) Summary {
	sum := Summary{
		Completion: sc.Completion(sections),
		Health:     map[canvas.SectionID]int{},
		Sections:   make([]SectionScore, 0, len(sections)),
	}
	for _, s := range sections {
		h := sc.Health(s)
		sum.Health[s.ID] = h
		sum.Sections = append(sum.Sections, SectionScore{
			Section: s.ID,
			Title:   s.Title,
			Status:  s.Status,
			Items:   s.ItemCount(),
			Weight:  s.CompletionWeight,
			Health:  h,
			Band:    BandFor(h),
		})
	}
	return sum
}

func BandFor(health int) Band {
	switch {
	case health >= 80:
		return BandStrong
	case health >= 60:
		return BandSolid
	case health >= 40:
		return BandDeveloping
	case health > 0:
		return BandWeak
	default:
		return BandEmpty
	}
}

func Completion(sections []canvas.Section) int { return Default().Completion(sections) }

func Health(s canvas.Section) int { return Default().Health(s) }
