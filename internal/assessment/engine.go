package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/lucidra-engine/internal/findings"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
	"github.com/joelkehle/lucidra-engine/internal/scoring"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

const tracerName = "github.com/joelkehle/lucidra-engine/internal/assessment"

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type StageProgressFn func(stage, message string)

// Engine runs the validator, scorer, position scorer and synthesizer over a
// snapshot. It holds no session state.
type Engine struct {
	validator *validation.Validator
	scorer    scoring.Scorer
	synth     *insight.Synthesizer
	provider  findings.Provider
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Engine)

func WithValidator(v *validation.Validator) Option {
	return func(e *Engine) {
		if v != nil {
			e.validator = v
		}
	}
}

func WithScorer(s scoring.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

func WithSynthesizer(s *insight.Synthesizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.synth = s
		}
	}
}

// WithProvider sets the external findings source used by Run.
func WithProvider(p findings.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		validator: validation.New(),
		scorer:    scoring.Default(),
		synth:     insight.New(),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) HasProvider() bool { return e.provider != nil }

// Local returns a copy of e that never calls the findings provider.
func (e *Engine) Local() *Engine {
	cp := *e
	cp.provider = nil
	return &cp
}

// Evaluate is the pure path: validation, scores, position and insights from
// internal findings merged into the snapshot's prior insights.
func (e *Engine) Evaluate(snap Snapshot) (Evaluation, error) {
	var ev Evaluation
	if err := e.evaluateCore(snap, &ev); err != nil {
		return Evaluation{}, err
	}
	res, err := e.synth.Synthesize(e.synthInput(snap, ev, nil))
	if err != nil {
		return Evaluation{}, &StageError{Stage: StageSynthesize, Err: err}
	}
	ev.Insights = res
	return ev, nil
}

func (e *Engine) evaluateCore(snap Snapshot, ev *Evaluation) error {
	results, err := e.validator.Validate(snap.Sections)
	if err != nil {
		return &StageError{Stage: StageValidate, Err: err}
	}
	ev.Validation = results
	ev.Scores = e.scorer.Summarize(snap.Sections)
	if len(snap.Forces) > 0 {
		pos, err := fiveforces.Attractiveness(snap.Forces)
		if err != nil {
			return &StageError{Stage: StagePosition, Err: err}
		}
		ev.Position = &pos
	}
	return nil
}

func (e *Engine) synthInput(snap Snapshot, ev Evaluation, external []insight.RawFinding) insight.Input {
	return insight.Input{
		Validation: ev.Validation,
		Health:     ev.Scores.Health,
		Position:   ev.Position,
		External:   external,
		Prior:      snap.Prior,
	}
}

// Run evaluates the snapshot and, when a provider is configured, folds in
// external findings. A provider failure degrades the report instead of
// failing it; structural input errors abort.
func (e *Engine) Run(ctx context.Context, snap Snapshot, progress StageProgressFn) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "assessment.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", snap.SessionID), attribute.Int64("canvas.version", snap.CanvasVersion))

	r := Report{Snapshot: snap, Metadata: Metadata{StartedAt: e.now().UTC(), Mode: ReportModeComplete}}

	if err := e.runCore(ctx, &r, progress); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r, err
	}

	var external []insight.RawFinding
	var fetchErr error
	if e.provider == nil {
		r.Metadata.StagesSkipped = append(r.Metadata.StagesSkipped, StageFindings)
	} else {
		external, fetchErr = e.runFindings(ctx, &r, progress)
	}

	emit(progress, StageSynthesize, "Synthesizing insights...")
	_, sspan := e.tracer.Start(ctx, "assessment."+StageSynthesize)
	res, err := e.synth.Synthesize(e.synthInput(snap, r.Evaluation, external))
	if err != nil && len(external) > 0 {
		// a malformed external finding must not take internal insights down
		fetchErr = errors.Join(fetchErr, err)
		external = nil
		res, err = e.synth.Synthesize(e.synthInput(snap, r.Evaluation, nil))
	}
	sspan.End()
	if err != nil {
		err = &StageError{Stage: StageSynthesize, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r, err
	}
	r.Insights = res
	r.Metadata.ExternalCount = len(external)
	r.Metadata.StagesExecuted = append(r.Metadata.StagesExecuted, StageSynthesize)

	if fetchErr != nil {
		e.logger.Warn("assessment degraded",
			zap.String("session_id", snap.SessionID),
			zap.String("stage", StageFindings),
			zap.Error(fetchErr))
		return e.finalizeDegraded(r, StageFindings, fetchErr), nil
	}
	return e.finalize(r), nil
}

func (e *Engine) runCore(ctx context.Context, r *Report, progress StageProgressFn) error {
	emit(progress, StageValidate, "Checking canvas rules...")
	_, span := e.tracer.Start(ctx, "assessment."+StageValidate)
	results, err := e.validator.Validate(r.Snapshot.Sections)
	span.End()
	if err != nil {
		return &StageError{Stage: StageValidate, Err: err}
	}
	r.Validation = results
	r.Metadata.StagesExecuted = append(r.Metadata.StagesExecuted, StageValidate)

	emit(progress, StageScore, "Scoring completion and section health...")
	r.Scores = e.scorer.Summarize(r.Snapshot.Sections)
	r.Metadata.StagesExecuted = append(r.Metadata.StagesExecuted, StageScore)

	if len(r.Snapshot.Forces) == 0 {
		r.Metadata.StagesSkipped = append(r.Metadata.StagesSkipped, StagePosition)
		return nil
	}
	emit(progress, StagePosition, "Evaluating competitive position...")
	_, pspan := e.tracer.Start(ctx, "assessment."+StagePosition)
	pos, err := fiveforces.Attractiveness(r.Snapshot.Forces)
	if err == nil {
		pspan.SetAttributes(attribute.Float64("position.attractiveness", pos.OverallAttractiveness))
	}
	pspan.End()
	if err != nil {
		return &StageError{Stage: StagePosition, Err: err}
	}
	r.Position = &pos
	r.Metadata.StagesExecuted = append(r.Metadata.StagesExecuted, StagePosition)
	return nil
}

func (e *Engine) runFindings(ctx context.Context, r *Report, progress StageProgressFn) ([]insight.RawFinding, error) {
	emit(progress, StageFindings, "Gathering external findings...")
	req := findings.Request{
		Sections: r.Snapshot.Sections,
		Forces:   r.Snapshot.Forces,
		Industry: r.Snapshot.Industry,
		Position: r.Position,
	}
	var (
		out []insight.RawFinding
		err error
	)
	if m, ok := e.provider.(*findings.Multi); ok {
		out, r.Metadata.Providers, err = m.FetchAll(ctx, req)
	} else {
		out, err = e.provider.Fetch(ctx, req)
	}
	if err != nil {
		return nil, &StageError{Stage: StageFindings, Err: err}
	}
	r.Metadata.StagesExecuted = append(r.Metadata.StagesExecuted, StageFindings)
	e.logger.Debug("external findings gathered",
		zap.String("session_id", r.Snapshot.SessionID),
		zap.String("provider", e.provider.Name()),
		zap.Int("findings", len(out)))
	return out, nil
}

func (e *Engine) finalizeDegraded(r Report, failedStage string, err error) Report {
	r.Metadata.Mode = ReportModeDegraded
	r.Metadata.StageFailed = failedStage
	r.Metadata.FailureReason = err.Error()
	return e.finalize(r)
}

func (e *Engine) finalize(r Report) Report {
	r.Metadata.CompletedAt = e.now().UTC()
	if r.Metadata.Mode == "" {
		r.Metadata.Mode = ReportModeComplete
	}
	return r
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "assessment"
}
