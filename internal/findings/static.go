package findings

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/lucidra-engine/internal/insight"
)

//go:embed static.yaml
var defaultStatic []byte

// Static serves a fixed catalogue of findings. A finding is returned only
// when the section it talks about has content.
type Static struct {
	catalogue []insight.RawFinding
}

type staticFile struct {
	Findings []insight.RawFinding `yaml:"findings"`
}

// NewStatic loads the embedded catalogue.
func NewStatic() (*Static, error) {
	return ParseStatic(defaultStatic)
}

func LoadStatic(path string) (*Static, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read findings catalogue: %w", err)
	}
	return ParseStatic(blob)
}

func ParseStatic(blob []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("parse findings catalogue: %w", err)
	}
	for _, rf := range f.Findings {
		if err := rf.Check(); err != nil {
			return nil, err
		}
	}
	return &Static{catalogue: f.Findings}, nil
}

func (s *Static) Name() string { return "static" }

func (s *Static) Fetch(ctx context.Context, req Request) ([]insight.RawFinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filled := map[string]bool{}
	for _, sec := range req.Sections {
		if sec.HasContent() {
			filled[string(sec.ID)] = true
		}
	}
	var out []insight.RawFinding
	for _, f := range s.catalogue {
		if !filled[f.Section] {
			continue
		}
		f.Evidence = append([]string(nil), f.Evidence...)
		f.Sources = append([]string(nil), f.Sources...)
		if f.Origin == "" {
			f.Origin = s.Name()
		}
		out = append(out, f)
	}
	return out, nil
}

// Catalogue returns a copy of every finding the provider knows.
func (s *Static) Catalogue() []insight.RawFinding {
	return append([]insight.RawFinding(nil), s.catalogue...)
}
