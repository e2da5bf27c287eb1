package assessment

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/lucidra-engine/internal/canvas"
	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
	"github.com/joelkehle/lucidra-engine/internal/insight"
	"github.com/joelkehle/lucidra-engine/internal/validation"
)

const ExportVersion = "2.0.0"

type exportSection struct {
	Title       string              `json:"title"`
	Content     []string            `json:"content"`
	Status      canvas.Status       `json:"status"`
	Completion  int                 `json:"completion"`
	Comments    []canvas.Comment    `json:"comments"`
	Attachments []canvas.Attachment `json:"attachments,omitempty"`
}

type exportDocument struct {
	SessionID         string                             `json:"session_id,omitempty"`
	Canvas            map[canvas.SectionID]exportSection `json:"business_model_canvas"`
	Forces            []fiveforces.Force                 `json:"five_forces,omitempty"`
	Position          *fiveforces.Position               `json:"competitive_position,omitempty"`
	Insights          []insight.Insight                  `json:"insights"`
	CompletionRate    int                                `json:"completion_rate"`
	ValidationResults []validation.Result                `json:"validation_results"`
	ExportDate        time.Time                          `json:"export_date"`
	Format            string                             `json:"format"`
	Version           string                             `json:"version"`
}

// ExportJSON writes the session export document. at is the export date.
func ExportJSON(r Report, at time.Time) ([]byte, error) {
	doc := exportDocument{
		SessionID:         r.Snapshot.SessionID,
		Canvas:            map[canvas.SectionID]exportSection{},
		Forces:            r.Snapshot.Forces,
		Position:          r.Position,
		Insights:          r.Insights.Insights,
		CompletionRate:    r.Scores.Completion,
		ValidationResults: r.Validation,
		ExportDate:        at.UTC(),
		Format:            "json",
		Version:           ExportVersion,
	}
	if doc.Insights == nil {
		doc.Insights = []insight.Insight{}
	}
	if doc.ValidationResults == nil {
		doc.ValidationResults = []validation.Result{}
	}
	for _, s := range r.Snapshot.Sections {
		comments := s.Comments
		if comments == nil {
			comments = []canvas.Comment{}
		}
		doc.Canvas[s.ID] = exportSection{
			Title:       s.Title,
			Content:     nonNil(s.Texts()),
			Status:      s.Status,
			Completion:  r.Scores.Health[s.ID],
			Comments:    comments,
			Attachments: s.Attachments,
		}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return out, nil
}

// ExportCSV writes one row per section in display order.
func ExportCSV(r Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Section", "Content", "Status", "Completion"}); err != nil {
		return nil, err
	}
	for _, s := range orderedSections(r.Snapshot.Sections) {
		row := []string{
			s.Title,
			strings.Join(s.Texts(), "; "),
			string(s.Status),
			fmt.Sprintf("%d%%", r.Scores.Health[s.ID]),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
