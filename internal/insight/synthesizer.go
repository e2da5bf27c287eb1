package insight

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

type Input struct {
	Validation []validation.Result
	Health     map[canvas.SectionID]int
	Position   *fiveforces.Position
	External   []RawFinding
	// Prior holds the currently active insights from earlier calls.
	Prior []Insight
}

type Result struct {
	Insights   []Insight      `json:"insights"`
	Superseded []Supersession `json:"superseded,omitempty"`
	Fresh      int            `json:"fresh"`
}

type Synthesizer struct {
	now   func() time.Time
	newID func() string
}

type Option func(*Synthesizer)

func WithClock(clock func() time.Time) Option {
	return func(s *Synthesizer) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Synthesizer) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize derives engine findings from the structured results, adds
// the external findings, and merges everything into the prior insights.
// Prior engine insights that are not derived again are retired, since the
// condition behind them no longer holds. External priors are kept.
func (s *Synthesizer) Synthesize(in Input) (Result, error) {
	findings := Derive(in.Validation, in.Health, in.Position)
	findings = append(findings, in.External...)
	return s.merge(in.Prior, findings, true)
}

type member struct {
	finding RawFinding
	prior   *Insight
}

type group struct {
	members []member
	best    int
	hasNew  bool
}

// Merge deduplicates findings on (type, section, title) against each other
// and against prior insights, then ranks the survivors. Prior records are
// never edited; a changed group yields a fresh insight and a supersession.
func (s *Synthesizer) Merge(prior []Insight, findings []RawFinding) (Result, error) {
	return s.merge(prior, findings, false)
}

func (s *Synthesizer) merge(prior []Insight, findings []RawFinding, retireEngine bool) (Result, error) {
	for _, f := range findings {
		if err := f.Check(); err != nil {
			return Result{}, err
		}
	}

	groups := map[string]*group{}
	var order []string
	add := func(k string, m member) {
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		g.members = append(g.members, m)
		idx := len(g.members) - 1
		// later members win ties so refreshed findings replace stale text
		if idx > 0 && m.finding.Confidence >= g.members[g.best].finding.Confidence {
			g.best = idx
		}
		if m.prior == nil {
			g.hasNew = true
		}
	}
	for i := range prior {
		p := prior[i]
		add(p.Key(), member{finding: findingOf(p), prior: &p})
	}
	for _, f := range findings {
		f = normalize(f)
		add(key(f.Type, f.Section, f.Title), member{finding: f})
	}

	now := s.now().UTC()
	res := Result{}
	var active []Insight
	fresh := map[string]bool{}
	confirmed := map[string]bool{}
	for _, k := range order {
		g := groups[k]
		win := g.members[g.best].finding
		if retireEngine && !g.hasNew && win.Origin == OriginEngine {
			for _, m := range g.members {
				res.Superseded = append(res.Superseded, Supersession{InsightID: m.prior.ID, At: now})
			}
			continue
		}
		evidence, sources := unionLists(g.members)
		keep := keptPrior(g, win, evidence, sources)
		if keep != nil {
			active = append(active, *keep)
			if g.hasNew {
				confirmed[keep.ID] = true
			}
			for _, m := range g.members {
				if m.prior != nil && m.prior.ID != keep.ID {
					res.Superseded = append(res.Superseded, Supersession{InsightID: m.prior.ID, SupersededBy: keep.ID, At: now})
				}
			}
			continue
		}
		out := Insight{
			ID:          s.newID(),
			Type:        win.Type,
			Section:     strings.TrimSpace(win.Section),
			Confidence:  win.Confidence,
			Impact:      win.Impact,
			Title:       strings.TrimSpace(win.Title),
			Description: win.Description,
			Action:      win.Action,
			Evidence:    evidence,
			Sources:     sources,
			Origin:      win.Origin,
			Timestamp:   now,
		}
		fresh[out.ID] = true
		active = append(active, out)
		for _, m := range g.members {
			if m.prior != nil {
				res.Superseded = append(res.Superseded, Supersession{InsightID: m.prior.ID, SupersededBy: out.ID, At: now})
			}
		}
	}

	Rank(active)

	// A fresh insight also supersedes older, unconfirmed insights of the
	// same (type, section) family from the same origin.
	newest := map[string]string{}
	for _, in := range active {
		if fresh[in.ID] {
			fk := familyKey(in.Type, in.Section, in.Origin)
			if _, ok := newest[fk]; !ok {
				newest[fk] = in.ID
			}
		}
	}
	res.Insights = make([]Insight, 0, len(active))
	for _, in := range active {
		if !fresh[in.ID] && !confirmed[in.ID] {
			if by, ok := newest[familyKey(in.Type, in.Section, in.Origin)]; ok {
				res.Superseded = append(res.Superseded, Supersession{InsightID: in.ID, SupersededBy: by, At: now})
				continue
			}
		}
		res.Insights = append(res.Insights, in)
	}
	res.Fresh = len(fresh)
	return res, nil
}

// keptPrior returns the prior insight a group resolves to when nothing
// about it changed, or nil when a fresh insight is needed.
func keptPrior(g *group, win RawFinding, evidence, sources []string) *Insight {
	best := g.members[g.best]
	if best.prior != nil {
		if sameList(best.prior.Evidence, evidence) && sameList(best.prior.Sources, sources) {
			return best.prior
		}
		return nil
	}
	for _, m := range g.members {
		p := m.prior
		if p == nil {
			continue
		}
		if p.Confidence == win.Confidence && p.Impact == win.Impact && p.Description == win.Description &&
			p.Action == win.Action && p.Origin == win.Origin &&
			sameList(p.Evidence, evidence) && sameList(p.Sources, sources) {
			return p
		}
	}
	return nil
}

// Rank orders insights by impact, then confidence, with type, section and
// title as deterministic tie-breaks.
func Rank(list []Insight) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Impact.rank() != b.Impact.rank() {
			return a.Impact.rank() > b.Impact.rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Title < b.Title
	})
}

func findingOf(in Insight) RawFinding {
	return RawFinding{
		Type:        in.Type,
		Section:     in.Section,
		Confidence:  in.Confidence,
		Impact:      in.Impact,
		Title:       in.Title,
		Description: in.Description,
		Action:      in.Action,
		Evidence:    in.Evidence,
		Sources:     in.Sources,
		Origin:      in.Origin,
	}
}

func normalize(f RawFinding) RawFinding {
	f.Section = strings.TrimSpace(f.Section)
	f.Title = strings.TrimSpace(f.Title)
	if strings.TrimSpace(f.Origin) == "" {
		f.Origin = "external"
	}
	return f
}

func unionLists(members []member) ([]string, []string) {
	var evidence, sources []string
	seenE := map[string]struct{}{}
	seenS := map[string]struct{}{}
	for _, m := range members {
		for _, e := range m.finding.Evidence {
			if e = strings.TrimSpace(e); e == "" {
				continue
			}
			if _, ok := seenE[e]; !ok {
				seenE[e] = struct{}{}
				evidence = append(evidence, e)
			}
		}
		for _, src := range m.finding.Sources {
			if src = strings.TrimSpace(src); src == "" {
				continue
			}
			if _, ok := seenS[src]; !ok {
				seenS[src] = struct{}{}
				sources = append(sources, src)
			}
		}
	}
	if evidence == nil {
		evidence = []string{}
	}
	if sources == nil {
		sources = []string{}
	}
	return evidence, sources
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
