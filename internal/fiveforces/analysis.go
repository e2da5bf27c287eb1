package fiveforces

import (
	"strings"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
)

// Analysis holds the five forces of one session. The fixed array keeps
// forces from being added or removed.
type Analysis struct {
	Forces [ForceCount]Force `json:"forces"`
}

func NewAnalysis() Analysis {
	var a Analysis
	for i, id := range forceOrder {
		a.Forces[i] = Force{
			ID:                   id,
			Name:                 id.Name(),
			Intensity:            DefaultIntensity,
			Factors:              []string{},
			MitigationStrategies: []string{},
		}
	}
	return a
}

// FromForces builds an analysis from a caller-supplied list, rejecting
// anything other than the five known forces.
func FromForces(forces []Force) (Analysis, error) {
	arranged, err := arrange(forces)
	if err != nil {
		return Analysis{}, err
	}
	a := Analysis{Forces: arranged}
	for i := range a.Forces {
		if a.Forces[i].Name == "" {
			a.Forces[i].Name = a.Forces[i].ID.Name()
		}
		if a.Forces[i].Factors == nil {
			a.Forces[i].Factors = []string{}
		}
		if a.Forces[i].MitigationStrategies == nil {
			a.Forces[i].MitigationStrategies = []string{}
		}
	}
	return a, nil
}

func (a Analysis) List() []Force {
	out := make([]Force, ForceCount)
	for i, f := range a.Forces {
		f.Factors = append([]string{}, f.Factors...)
		f.MitigationStrategies = append([]string{}, f.MitigationStrategies...)
		out[i] = f
	}
	return out
}

func (a Analysis) Force(id ForceID) (Force, error) {
	idx := id.Index()
	if idx < 0 {
		return Force{}, apperr.Configuration("five_forces", "unknown force %q", id)
	}
	return a.Forces[idx], nil
}

func (a Analysis) Position() (Position, error) {
	return Attractiveness(a.Forces[:])
}

func (a *Analysis) ref(id ForceID) (*Force, error) {
	idx := id.Index()
	if idx < 0 {
		return nil, apperr.Configuration("five_forces", "unknown force %q", id)
	}
	return &a.Forces[idx], nil
}

func (a *Analysis) SetIntensity(id ForceID, intensity int) error {
	f, err := a.ref(id)
	if err != nil {
		return err
	}
	if err := checkIntensity(id, intensity); err != nil {
		return err
	}
	f.Intensity = intensity
	return nil
}

// ToggleFactor selects the factor if absent and deselects it otherwise.
// It reports whether the factor is selected afterwards.
func (a *Analysis) ToggleFactor(id ForceID, factor string) (bool, error) {
	f, err := a.ref(id)
	if err != nil {
		return false, err
	}
	factor = strings.TrimSpace(factor)
	if !inVocabulary(id, factor) {
		return false, apperr.Configuration("factor_vocabulary", "factor %q is not a driver of %s", factor, id)
	}
	for i, existing := range f.Factors {
		if existing == factor {
			f.Factors = append(f.Factors[:i:i], f.Factors[i+1:]...)
			return false, nil
		}
	}
	f.Factors = append(f.Factors, factor)
	return true, nil
}

func (a *Analysis) SetFactors(id ForceID, factors []string) error {
	f, err := a.ref(id)
	if err != nil {
		return err
	}
	out := []string{}
	seen := map[string]struct{}{}
	for _, factor := range factors {
		factor = strings.TrimSpace(factor)
		if !inVocabulary(id, factor) {
			return apperr.Configuration("factor_vocabulary", "factor %q is not a driver of %s", factor, id)
		}
		if _, ok := seen[factor]; ok {
			continue
		}
		seen[factor] = struct{}{}
		out = append(out, factor)
	}
	f.Factors = out
	return nil
}

func (a *Analysis) SetImpact(id ForceID, impact string) error {
	f, err := a.ref(id)
	if err != nil {
		return err
	}
	f.Impact = strings.TrimSpace(impact)
	return nil
}

func (a *Analysis) SetMitigation(id ForceID, strategies []string) error {
	f, err := a.ref(id)
	if err != nil {
		return err
	}
	f.MitigationStrategies = normalizeLines(strategies)
	return nil
}

// Update is a partial edit of one force; nil fields are left unchanged.
type Update struct {
	Intensity            *int      `json:"intensity,omitempty"`
	Factors              *[]string `json:"factors,omitempty"`
	Impact               *string   `json:"impact,omitempty"`
	MitigationStrategies *[]string `json:"mitigation_strategies,omitempty"`
}

// Apply validates and applies u atomically.
func (a *Analysis) Apply(id ForceID, u Update) (Force, error) {
	idx := id.Index()
	if idx < 0 {
		return Force{}, apperr.Configuration("five_forces", "unknown force %q", id)
	}
	work := *a
	work.Forces[idx].Factors = append([]string{}, a.Forces[idx].Factors...)
	if u.Intensity != nil {
		if err := work.SetIntensity(id, *u.Intensity); err != nil {
			return Force{}, err
		}
	}
	if u.Factors != nil {
		if err := work.SetFactors(id, *u.Factors); err != nil {
			return Force{}, err
		}
	}
	if u.Impact != nil {
		if err := work.SetImpact(id, *u.Impact); err != nil {
			return Force{}, err
		}
	}
	if u.MitigationStrategies != nil {
		if err := work.SetMitigation(id, *u.MitigationStrategies); err != nil {
			return Force{}, err
		}
	}
	f, err := work.Force(id)
	if err != nil {
		return Force{}, err
	}
	*a = work
	return f, nil
}
