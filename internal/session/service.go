package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/apperr"
	"github.com/joelkehle/lucidra-engine/internal/assessment"
	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
	"github.com/joelkehle/lucidra-engine/internal/store"
)

// Service owns session workflows: every canvas or force edit is a
// load-mutate-save cycle, and analyses persist their insights.
type Service struct {
	store  store.API
	engine *assessment.Engine
	defs   []canvas.Definition
	logger *zap.Logger

	// mu serializes read-modify-write cycles against the store.
	mu sync.Mutex
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefinitions sets the section definitions used for new sessions.
func WithDefinitions(defs []canvas.Definition) Option {
	return func(s *Service) { s.defs = defs }
}

func NewService(st store.API, engine *assessment.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = assessment.NewEngine()
	}
	s := &Service{store: st, engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Preset   string `json:"preset,omitempty"`
	Author   string `json:"author,omitempty"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (store.Session, error) {
	if strings.TrimSpace(in.Name) == "" {
		return store.Session{}, apperr.Validation("name is required")
	}
	c, err := s.newCanvas()
	if err != nil {
		return store.Session{}, err
	}
	if in.Preset != "" {
		if _, err := c.ApplyPreset(in.Preset, in.Author); err != nil {
			return store.Session{}, err
		}
	}
	created, err := s.store.CreateSession(ctx, store.Session{
		ID:       strings.TrimSpace(in.ID),
		Name:     strings.TrimSpace(in.Name),
		Industry: strings.TrimSpace(in.Industry),
		Sections: c.Sections(),
		Forces:   []fiveforces.Force{},
	})
	if err != nil {
		return store.Session{}, err
	}
	s.logger.Info("session created", zap.String("session_id", created.ID), zap.String("preset", in.Preset))
	return created, nil
}

func (s *Service) newCanvas() (*canvas.Canvas, error) {
	if len(s.defs) > 0 {
		return canvas.New(s.defs)
	}
	return canvas.NewDefault()
}

func (s *Service) Get(ctx context.Context, id string) (store.Session, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]store.SessionSummary, error) {
	return s.store.ListSessions(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// mutateCanvas applies fn to the stored canvas and saves the result. A
// failing fn leaves the stored session untouched.
func (s *Service) mutateCanvas(ctx context.Context, id string, fn func(c *canvas.Canvas) error) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return store.Session{}, err
	}
	c, err := canvas.FromSections(sess.Sections)
	if err != nil {
		return store.Session{}, fmt.Errorf("load canvas for %s: %w", id, err)
	}
	if err := fn(c); err != nil {
		return store.Session{}, err
	}
	sess.Sections = c.Sections()
	return s.store.SaveSession(ctx, sess)
}

func (s *Service) ReplaceContent(ctx context.Context, id string, section canvas.SectionID, lines []string, author string) (canvas.Section, error) {
	var out canvas.Section
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.ReplaceContent(section, lines, author)
		return err
	})
	return out, err
}

func (s *Service) AddItem(ctx context.Context, id string, section canvas.SectionID, in canvas.ItemInput, author string) (canvas.Item, error) {
	var out canvas.Item
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.AddItem(section, in, author)
		return err
	})
	return out, err
}

func (s *Service) UpdateItem(ctx context.Context, id string, section canvas.SectionID, itemID string, in canvas.ItemInput, author string) (canvas.Item, error) {
	var out canvas.Item
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.UpdateItem(section, itemID, in, author)
		return err
	})
	return out, err
}

func (s *Service) RemoveItem(ctx context.Context, id string, section canvas.SectionID, itemID, author string) (canvas.Section, error) {
	var out canvas.Section
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.RemoveItem(section, itemID, author)
		return err
	})
	return out, err
}

func (s *Service) ClearSection(ctx context.Context, id string, section canvas.SectionID, author string) (canvas.Section, error) {
	var out canvas.Section
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.ClearSection(section, author)
		return err
	})
	return out, err
}

func (s *Service) SetStatus(ctx context.Context, id string, section canvas.SectionID, status canvas.Status, author string) (canvas.Section, error) {
	var out canvas.Section
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.SetStatus(section, status, author)
		return err
	})
	return out, err
}

func (s *Service) AddComment(ctx context.Context, id string, section canvas.SectionID, author, text string, kind canvas.CommentType) (canvas.Comment, error) {
	var out canvas.Comment
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.AddComment(section, author, text, kind)
		return err
	})
	return out, err
}

func (s *Service) ResolveComment(ctx context.Context, id string, section canvas.SectionID, commentID, author string) (canvas.Section, error) {
	var out canvas.Section
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.ResolveComment(section, commentID, author)
		return err
	})
	return out, err
}

func (s *Service) AddAttachment(ctx context.Context, id string, section canvas.SectionID, name, url, author string) (canvas.Attachment, error) {
	var out canvas.Attachment
	_, err := s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		var err error
		out, err = c.AddAttachment(section, name, url, author)
		return err
	})
	return out, err
}

func (s *Service) ApplyPreset(ctx context.Context, id, preset, author string) (store.Session, error) {
	return s.mutateCanvas(ctx, id, func(c *canvas.Canvas) error {
		_, err := c.ApplyPreset(preset, author)
		return err
	})
}

// UpdateForce edits one force. A session without forces starts from the
// default analysis on its first edit.
func (s *Service) UpdateForce(ctx context.Context, id string, force fiveforces.ForceID, u fiveforces.Update) (fiveforces.Force, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return fiveforces.Force{}, err
	}
	a := fiveforces.NewAnalysis()
	if len(sess.Forces) > 0 {
		if a, err = fiveforces.FromForces(sess.Forces); err != nil {
			return fiveforces.Force{}, fmt.Errorf("load forces for %s: %w", id, err)
		}
	}
	f, err := a.Apply(force, u)
	if err != nil {
		return fiveforces.Force{}, err
	}
	sess.Forces = a.List()
	if _, err := s.store.SaveSession(ctx, sess); err != nil {
		return fiveforces.Force{}, err
	}
	return f, nil
}

// Snapshot captures the session and its active insights as engine input.
func (s *Service) Snapshot(ctx context.Context, id string) (assessment.Snapshot, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return assessment.Snapshot{}, err
	}
	prior, err := s.store.ListInsights(ctx, id, false)
	if err != nil {
		return assessment.Snapshot{}, err
	}
	return assessment.Snapshot{
		SessionID:     sess.ID,
		Name:          sess.Name,
		Industry:      sess.Industry,
		CanvasVersion: sess.Version,
		Sections:      sess.Sections,
		Forces:        sess.Forces,
		Prior:         prior,
	}, nil
}

// Evaluate runs the pure assessment over the stored session. Nothing is
// persisted.
func (s *Service) Evaluate(ctx context.Context, id string) (assessment.Evaluation, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return assessment.Evaluation{}, err
	}
	return s.engine.Evaluate(snap)
}

// Analysis is the outcome of Analyze. Stale is set when the canvas or the
// stored insights changed while the analysis ran; its insights were then
// not stored.
type Analysis struct {
	Report assessment.Report `json:"report"`
	Stale  bool              `json:"stale"`
}

// Analyze runs the full pipeline and appends the resulting insights and
// supersessions to the session history.
func (s *Service) Analyze(ctx context.Context, id string, withExternal bool, progress assessment.StageProgressFn) (Analysis, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return Analysis{}, err
	}
	engine := s.engine
	if !withExternal {
		engine = engine.Local()
	}
	r, err := engine.Run(ctx, snap, progress)
	if err != nil {
		s.logger.Error("analysis failed",
			zap.String("session_id", id),
			zap.String("stage", assessment.StageNameFromError(err)),
			zap.Error(err))
		return Analysis{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Analysis{}, err
	}
	if cur.Version != snap.CanvasVersion {
		s.logger.Warn("dropping stale analysis",
			zap.String("session_id", id),
			zap.Int64("analyzed_version", snap.CanvasVersion),
			zap.Int64("current_version", cur.Version))
		return Analysis{Report: r, Stale: true}, nil
	}
	// another analysis stored insights after this one took its snapshot
	active, err := s.store.ListInsights(ctx, id, false)
	if err != nil {
		return Analysis{}, err
	}
	if !sameInsightSet(active, snap.Prior) {
		s.logger.Warn("dropping analysis superseded by a concurrent run",
			zap.String("session_id", id),
			zap.Int("prior", len(snap.Prior)),
			zap.Int("active", len(active)))
		return Analysis{Report: r, Stale: true}, nil
	}
	if err := s.store.AppendInsights(ctx, id, r.Insights.Insights); err != nil {
		return Analysis{}, fmt.Errorf("store insights: %w", err)
	}
	if err := s.store.RecordSupersessions(ctx, id, r.Insights.Superseded); err != nil {
		return Analysis{}, fmt.Errorf("store supersessions: %w", err)
	}
	s.logger.Info("analysis stored",
		zap.String("session_id", id),
		zap.String("mode", string(r.Metadata.Mode)),
		zap.Int("insights", len(r.Insights.Insights)),
		zap.Int("fresh", r.Insights.Fresh),
		zap.Int("superseded", len(r.Insights.Superseded)))
	return Analysis{Report: r}, nil
}

// Insights lists stored insights, ranked, optionally including the
// superseded history.
func (s *Service) Insights(ctx context.Context, id string, includeSuperseded bool) ([]insight.Insight, error) {
	list, err := s.store.ListInsights(ctx, id, includeSuperseded)
	if err != nil {
		return nil, err
	}
	insight.Rank(list)
	return list, nil
}

// Report assembles an exportable report from fresh validation and scores
// plus the stored active insights.
func (s *Service) Report(ctx context.Context, id string) (assessment.Report, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return assessment.Report{}, err
	}
	ev, err := s.engine.Evaluate(snap)
	if err != nil {
		return assessment.Report{}, err
	}
	active := append([]insight.Insight{}, snap.Prior...)
	insight.Rank(active)
	ev.Insights = insight.Result{Insights: active}
	return assessment.Report{
		Snapshot:   snap,
		Evaluation: ev,
		Metadata:   assessment.Metadata{Mode: assessment.ReportModeComplete},
	}, nil
}

func sameInsightSet(a, b []insight.Insight) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, in := range a {
		seen[in.ID] = struct{}{}
	}
	for _, in := range b {
		if _, ok := seen[in.ID]; !ok {
			return false
		}
	}
	return true
}
