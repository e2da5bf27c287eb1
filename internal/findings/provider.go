package findings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
)

const tracerName = "github.com/joelkehle/lucidra-engine/internal/findings"

// Request is the read-only view of a session handed to providers.
type Request struct {
	Sections []canvas.Section
	Forces   []fiveforces.Force
	Industry string
	Position *fiveforces.Position
}

// Provider produces external findings. Findings are untrusted input: the
// synthesizer validates them before they can affect any insight.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]insight.RawFinding, error)
}

// Outcome reports what one provider contributed to a Multi fetch.
type Outcome struct {
	Provider string        `json:"provider"`
	Findings int           `json:"findings"`
	Elapsed  time.Duration `json:"-"`
	MS       int64         `json:"elapsed_ms"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
}

// Multi fans a request out to several providers and concatenates their
// findings in provider order.
type Multi struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

type MultiOption func(*Multi)

// WithTimeout bounds each provider call. Zero means no extra bound.
func WithTimeout(d time.Duration) MultiOption {
	return func(m *Multi) { m.timeout = d }
}

func WithLogger(logger *zap.Logger) MultiOption {
	return func(m *Multi) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMulti(providers []Provider, opts ...MultiOption) *Multi {
	m := &Multi{logger: zap.NewNop()}
	for _, p := range providers {
		if p != nil {
			m.providers = append(m.providers, p)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, "+")
}

func (m *Multi) Len() int { return len(m.providers) }

// Fetch returns the combined findings. It fails only when every provider
// failed.
func (m *Multi) Fetch(ctx context.Context, req Request) ([]insight.RawFinding, error) {
	out, _, err := m.FetchAll(ctx, req)
	return out, err
}

// FetchAll is Fetch plus the per-provider outcomes.
func (m *Multi) FetchAll(ctx context.Context, req Request) ([]insight.RawFinding, []Outcome, error) {
	if len(m.providers) == 0 {
		return nil, nil, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "findings.multi")
	defer span.End()

	results := make([][]insight.RawFinding, len(m.providers))
	outcomes := make([]Outcome, len(m.providers))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range m.providers {
		g.Go(func() error {
			pctx := gctx
			if m.timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(gctx, m.timeout)
				defer cancel()
			}
			start := time.Now()
			found, err := fetchTraced(pctx, p, req)
			elapsed := time.Since(start)
			o := Outcome{Provider: p.Name(), Findings: len(found), Elapsed: elapsed, MS: elapsed.Milliseconds(), Err: err}
			if err != nil {
				o.Error = err.Error()
				found = nil
				o.Findings = 0
			}
			mu.Lock()
			results[i] = found
			outcomes[i] = o
			mu.Unlock()
			// provider failures are isolated, never propagated to the group
			return nil
		})
	}
	_ = g.Wait()

	var out []insight.RawFinding
	var errs []error
	for i, o := range outcomes {
		if o.Err != nil {
			m.logger.Warn("findings provider failed",
				zap.String("provider", o.Provider),
				zap.Duration("elapsed", o.Elapsed),
				zap.Error(o.Err))
			errs = append(errs, fmt.Errorf("%s: %w", o.Provider, o.Err))
			continue
		}
		m.logger.Debug("findings provider completed",
			zap.String("provider", o.Provider),
			zap.Int("findings", o.Findings),
			zap.Duration("elapsed", o.Elapsed))
		out = append(out, results[i]...)
	}
	span.SetAttributes(attribute.Int("findings.count", len(out)), attribute.Int("findings.failed", len(errs)))
	if len(errs) == len(m.providers) {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "all providers failed")
		return nil, outcomes, err
	}
	return out, outcomes, nil
}

func fetchTraced(ctx context.Context, p Provider, req Request) ([]insight.RawFinding, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "findings.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("findings.provider", p.Name()))
	found, err := p.Fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("findings.count", len(found)))
	return found, nil
}
