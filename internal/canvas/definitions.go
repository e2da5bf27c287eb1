package canvas

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

//go:embed sections.yaml
var defaultSectionsYAML []byte

type definitionFile struct {
	Sections []Definition `yaml:"sections"`
}

func DefaultDefinitions() ([]Definition, error) {
	return ParseDefinitions(defaultSectionsYAML)
}

func LoadDefinitions(path string) ([]Definition, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read section definitions: %w", err)
	}
	return ParseDefinitions(blob)
}

func ParseDefinitions(blob []byte) ([]Definition, error) {
	var f definitionFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, apperr.Configuration("definitions_yaml", "parse section definitions: %v", err)
	}
	return CheckDefinitions(f.Sections)
}

func MarshalDefinitions(defs []Definition) ([]byte, error) {
	return yaml.Marshal(definitionFile{Sections: defs})
}

// CheckDefinitions validates a definition set and returns it in display order.
func CheckDefinitions(defs []Definition) ([]Definition, error) {
	if len(defs) != SectionCount {
		return nil, apperr.Configuration("nine_sections", "expected %d sections, got %d", SectionCount, len(defs))
	}
	var ordered [SectionCount]*Definition
	for i := range defs {
		d := defs[i]
		d.Rules = append([]Rule(nil), d.Rules...)
		idx := d.ID.Index()
		if idx < 0 {
			return nil, apperr.Configuration("nine_sections", "unknown section %q", d.ID)
		}
		if ordered[idx] != nil {
			return nil, apperr.Configuration("nine_sections", "duplicate section %q", d.ID)
		}
		if strings.TrimSpace(d.Title) == "" {
			return nil, apperr.Configuration("section_title", "section %q has no title", d.ID)
		}
		if d.CompletionWeight <= 0 {
			return nil, apperr.Configuration("completion_weight", "section %q weight must be positive, got %d", d.ID, d.CompletionWeight)
		}
		for _, dep := range d.Dependencies {
			if !dep.Valid() {
				return nil, apperr.Configuration("dependencies", "section %q depends on unknown section %q", d.ID, dep)
			}
		}
		seen := map[string]struct{}{}
		for j, r := range d.Rules {
			if strings.TrimSpace(r.ID) == "" {
				r.ID = fmt.Sprintf("%s-%s-%d", d.ID, r.Type, j+1)
				d.Rules[j] = r
			}
			if _, dup := seen[r.ID]; dup {
				return nil, apperr.Configuration("rule_id", "section %q declares rule %q twice", d.ID, r.ID)
			}
			seen[r.ID] = struct{}{}
			if err := CheckRule(r); err != nil {
				return nil, err
			}
		}
		ordered[idx] = &d
	}
	out := make([]Definition, 0, SectionCount)
	for _, d := range ordered {
		out = append(out, *d)
	}
	return out, nil
}

func CheckRule(r Rule) error {
	if !r.Severity.Valid() {
		return apperr.Configuration("rule_severity", "rule %q has unknown severity %q", r.ID, r.Severity)
	}
	switch r.Type {
	case RuleRequired:
		if v := strings.TrimSpace(r.Value); v != "" {
			if _, err := strconv.ParseBool(v); err != nil {
				return apperr.Configuration("rule_value", "rule %q: required value must be a boolean, got %q", r.ID, r.Value)
			}
		}
	case RuleMinLength, RuleMaxLength:
		if _, err := r.Count(); err != nil {
			return err
		}
	case RulePattern:
		if _, err := regexp.Compile(r.Value); err != nil {
			return apperr.Configuration("rule_pattern", "rule %q: %v", r.ID, err)
		}
	case RuleCustom:
	default:
		return apperr.Configuration("rule_type", "rule %q has unknown type %q", r.ID, r.Type)
	}
	return nil
}

// Count returns the numeric parameter of a length rule.
func (r Rule) Count() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.Value))
	if err != nil || n < 0 {
		return 0, apperr.Configuration("rule_value", "rule %q: %s value must be a non-negative integer, got %q", r.ID, r.Type, r.Value)
	}
	return n, nil
}

// Enabled reports whether a required rule is switched on.
func (r Rule) Enabled() bool {
	if r.Type != RuleRequired {
		return true
	}
	v, err := strconv.ParseBool(strings.TrimSpace(r.Value))
	return err != nil || v
}
