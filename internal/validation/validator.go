package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
)

// CrossSectionRuleID identifies the built-in value-propositions /
// customer-segments consistency check.
const CrossSectionRuleID = "value-propositions-for-segments"

const crossSectionMessage = "Value Propositions should be defined when Customer Segments are specified"

type Result struct {
	Section  canvas.SectionID   `json:"section"`
	Rule     canvas.Rule        `json:"rule"`
	Message  string             `json:"message"`
	Severity canvas.Severity    `json:"severity"`
	Related  []canvas.SectionID `json:"related,omitempty"`
}

// Predicate reports whether a custom rule passes for section, given the
// full canvas for cross-section checks.
type Predicate func(section canvas.Section, all []canvas.Section) bool

type Validator struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
	patterns   map[string]*regexp.Regexp
}

func New() *Validator {
	return &Validator{
		predicates: map[string]Predicate{},
		patterns:   map[string]*regexp.Regexp{},
	}
}

// Register installs the predicate evaluated for custom rules with the given id.
func (v *Validator) Register(ruleID string, p Predicate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.predicates[ruleID] = p
}

func (v *Validator) predicate(ruleID string) (Predicate, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.predicates[ruleID]
	return p, ok
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.RLock()
	re, ok := v.patterns[expr]
	v.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.patterns[expr] = re
	v.mu.Unlock()
	return re, nil
}

// Validate evaluates every section rule plus the built-in cross-section
// rule. Results are grouped by section in display order, then by rule
// declaration order.
func (v *Validator) Validate(sections []canvas.Section) ([]Result, error) {
	ordered, err := arrange(sections)
	if err != nil {
		return nil, err
	}
	results := []Result{}
	for _, s := range ordered {
		for _, rule := range s.Rules {
			failed, err := v.evaluate(rule, s, ordered)
			if err != nil {
				return nil, err
			}
			if failed {
				results = append(results, Result{
					Section:  s.ID,
					Rule:     rule,
					Message:  resolveMessage(s, rule),
					Severity: rule.Severity,
				})
			}
		}
		if s.ID == canvas.ValuePropositions {
			if r, ok := crossSection(ordered); ok {
				results = append(results, r)
			}
		}
	}
	return results, nil
}

func (v *Validator) evaluate(rule canvas.Rule, s canvas.Section, all []canvas.Section) (bool, error) {
	count := s.ItemCount()
	switch rule.Type {
	case canvas.RuleRequired:
		return rule.Enabled() && count == 0, nil
	case canvas.RuleMinLength:
		n, err := rule.Count()
		if err != nil {
			return false, err
		}
		return count < n, nil
	case canvas.RuleMaxLength:
		n, err := rule.Count()
		if err != nil {
			return false, err
		}
		return count > n, nil
	case canvas.RulePattern:
		re, err := v.pattern(rule.Value)
		if err != nil {
			return false, apperr.Configuration("rule_pattern", "rule %q: %v", rule.ID, err)
		}
		for _, text := range s.Texts() {
			if re.MatchString(text) {
				return false, nil
			}
		}
		return true, nil
	case canvas.RuleCustom:
		p, ok := v.predicate(rule.ID)
		if !ok {
			return false, apperr.Configuration("custom_rule", "no predicate registered for rule %q", rule.ID)
		}
		return !p(s, all), nil
	default:
		return false, apperr.Configuration("rule_type", "rule %q has unknown type %q", rule.ID, rule.Type)
	}
}

func crossSection(ordered []canvas.Section) (Result, bool) {
	vp := ordered[canvas.ValuePropositions.Index()]
	cs := ordered[canvas.CustomerSegments.Index()]
	if vp.HasContent() || !cs.HasContent() {
		return Result{}, false
	}
	rule := canvas.Rule{
		ID:       CrossSectionRuleID,
		Type:     canvas.RuleCustom,
		Message:  crossSectionMessage,
		Severity: canvas.SeverityWarning,
	}
	return Result{
		Section:  canvas.ValuePropositions,
		Rule:     rule,
		Message:  crossSectionMessage,
		Severity: canvas.SeverityWarning,
		Related:  []canvas.SectionID{canvas.CustomerSegments},
	}, true
}

func arrange(sections []canvas.Section) ([]canvas.Section, error) {
	if len(sections) != canvas.SectionCount {
		return nil, apperr.Configuration("nine_sections", "expected %d sections, got %d", canvas.SectionCount, len(sections))
	}
	out := make([]canvas.Section, canvas.SectionCount)
	seen := make([]bool, canvas.SectionCount)
	for _, s := range sections {
		idx := s.ID.Index()
		if idx < 0 {
			return nil, apperr.Configuration("nine_sections", "unknown section %q", s.ID)
		}
		if seen[idx] {
			return nil, apperr.Configuration("nine_sections", "duplicate section %q", s.ID)
		}
		seen[idx] = true
		out[idx] = s
	}
	return out, nil
}

func resolveMessage(s canvas.Section, rule canvas.Rule) string {
	msg := strings.NewReplacer("{section}", s.Title, "{value}", rule.Value).Replace(rule.Message)
	return fmt.Sprintf("%s: %s", s.Title, msg)
}

func CountBySeverity(results []Result) map[canvas.Severity]int {
	out := map[canvas.Severity]int{}
	for _, r := range results {
		out[r.Severity]++
	}
	return out
}
