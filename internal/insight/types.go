package insight

import (
	"strings"
	"time"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

type Type string

const (
	TypeSuggestion  Type = "suggestion"
	TypeWarning     Type = "warning"
	TypeOpportunity Type = "opportunity"
	TypeThreat      Type = "threat"
	TypeValidation  Type = "validation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSuggestion, TypeWarning, TypeOpportunity, TypeThreat, TypeValidation:
		return true
	}
	return false
}

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

func (i Impact) rank() int {
	switch i {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	}
	return 0
}

func (i Impact) Valid() bool { return i.rank() > 0 }

const OriginEngine = "engine"

// RawFinding is a candidate insight before deduplication and ranking.
// Its text is authored by whoever produced it.
type RawFinding struct {
	Type        Type     `json:"type" yaml:"type"`
	Section     string   `json:"section" yaml:"section"`
	Confidence  int      `json:"confidence" yaml:"confidence"`
	Impact      Impact   `json:"impact" yaml:"impact"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Action      string   `json:"action,omitempty" yaml:"action"`
	Evidence    []string `json:"evidence,omitempty" yaml:"evidence"`
	Sources     []string `json:"sources,omitempty" yaml:"sources"`
	Origin      string   `json:"origin,omitempty" yaml:"origin"`
}

type Insight struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Section     string    `json:"section"`
	Confidence  int       `json:"confidence"`
	Impact      Impact    `json:"impact"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Action      string    `json:"action,omitempty"`
	Evidence    []string  `json:"evidence"`
	Sources     []string  `json:"sources"`
	Origin      string    `json:"origin"`
	Timestamp   time.Time `json:"timestamp"`
}

// Supersession records that one insight replaced an older one. An empty
// SupersededBy means the insight was retired without a replacement.
type Supersession struct {
	InsightID    string    `json:"insight_id"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	At           time.Time `json:"at"`
}

// Key returns the deduplication identity of an insight.
func (in Insight) Key() string {
	return key(in.Type, in.Section, in.Title)
}

func key(t Type, section, title string) string {
	return string(t) + "\x00" + strings.TrimSpace(section) + "\x00" + strings.TrimSpace(title)
}

func familyKey(t Type, section, origin string) string {
	return string(t) + "\x00" + strings.TrimSpace(section) + "\x00" + origin
}

// Check reports the first structural problem with f.
func (f RawFinding) Check() error {
	if !f.Type.Valid() {
		return apperr.Configuration("insight_type", "finding %q has unknown type %q", f.Title, f.Type)
	}
	if !f.Impact.Valid() {
		return apperr.Configuration("insight_impact", "finding %q has unknown impact %q", f.Title, f.Impact)
	}
	if f.Confidence < 0 || f.Confidence > 100 {
		return apperr.Configuration("confidence_range", "finding %q confidence %d outside [0,100]", f.Title, f.Confidence)
	}
	if strings.TrimSpace(f.Title) == "" {
		return apperr.Configuration("insight_title", "finding title must not be blank")
	}
	if strings.TrimSpace(f.Section) == "" {
		return apperr.Configuration("insight_section", "finding %q has no section", f.Title)
	}
	return nil
}
