package assessment

import (
	"time"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/findings"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
	"github.com/joelkehle/lucidra-engine/internal/scoring"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

const (
	StageValidate   = "validate"
	StageScore      = "score"
	StagePosition   = "position"
	StageFindings   = "findings"
	StageSynthesize = "synthesize"
)

type ReportMode string

const (
	ReportModeComplete ReportMode = "complete"
	ReportModeDegraded ReportMode = "degraded"
)

const Disclaimer = "This assessment is generated from the canvas and force ratings you entered. Scores are heuristics, and external findings are unverified. Review them before acting on any recommendation."

// Snapshot is the immutable input to one assessment. Forces may be empty
// when no five forces analysis has been entered yet.
type Snapshot struct {
	SessionID     string             `json:"session_id"`
	Name          string             `json:"name,omitempty"`
	Industry      string             `json:"industry,omitempty"`
	CanvasVersion int64              `json:"canvas_version"`
	Sections      []canvas.Section   `json:"sections"`
	Forces        []fiveforces.Force `json:"forces,omitempty"`
	Prior         []insight.Insight  `json:"prior_insights,omitempty"`
}

// Evaluation is the deterministic part of an assessment.
type Evaluation struct {
	Validation []validation.Result  `json:"validation"`
	Scores     scoring.Summary      `json:"scores"`
	Position   *fiveforces.Position `json:"position,omitempty"`
	Insights   insight.Result       `json:"insights"`
}

type Metadata struct {
	StagesExecuted []string           `json:"stages_executed"`
	StagesSkipped  []string           `json:"stages_skipped"`
	StageFailed    string             `json:"stage_failed,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    time.Time          `json:"completed_at"`
	Mode           ReportMode         `json:"mode"`
	Providers      []findings.Outcome `json:"providers,omitempty"`
	ExternalCount  int                `json:"external_findings"`
}

type Report struct {
	Snapshot Snapshot
	Evaluation
	Metadata Metadata
}

type ResponseEnvelope struct {
	SessionID      string         `json:"session_id"`
	Completion     int            `json:"completion"`
	Attractiveness *float64       `json:"overall_attractiveness,omitempty"`
	ReportMode     ReportMode     `json:"report_mode"`
	ReportMarkdown string         `json:"report_markdown"`
	StageOutputs   map[string]any `json:"stage_outputs"`
	Metadata       Metadata       `json:"pipeline_metadata"`
	Disclaimer     string         `json:"disclaimer"`
}
