package findings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joelkehle/lucidra-engine/internal/fiveforces"
)

type promptSection struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Status  string   `json:"status"`
	Content []string `json:"content"`
}

type promptForce struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Intensity  int      `json:"intensity"`
	Factors    []string `json:"factors,omitempty"`
	Impact     string   `json:"impact,omitempty"`
	Mitigation []string `json:"mitigation,omitempty"`
}

type promptPayload struct {
	Industry string               `json:"industry,omitempty"`
	Canvas   []promptSection      `json:"canvas"`
	Forces   []promptForce        `json:"forces,omitempty"`
	Position *fiveforces.Position `json:"position,omitempty"`
}

const responseSchema = `{
  "findings": [
    {
      "type": "suggestion | warning | opportunity | threat | validation",
      "section": "canvas section id, force:<force id>, or five-forces",
      "confidence": "integer 0-100",
      "impact": "low | medium | high",
      "title": "short title",
      "description": "one or two sentences",
      "action": "recommended next step",
      "evidence": ["facts from the input that support the finding"],
      "sources": ["where the evidence comes from"]
    }
  ]
}`

// BuildPrompt renders the request as a prompt with the response schema.
func BuildPrompt(req Request) (string, error) {
	payload := promptPayload{Industry: strings.TrimSpace(req.Industry), Position: req.Position}
	for _, s := range req.Sections {
		payload.Canvas = append(payload.Canvas, promptSection{
			ID:      string(s.ID),
			Title:   s.Title,
			Status:  string(s.Status),
			Content: s.Texts(),
		})
	}
	for _, f := range req.Forces {
		payload.Forces = append(payload.Forces, promptForce{
			ID:         string(f.ID),
			Name:       f.Name,
			Intensity:  f.Intensity,
			Factors:    f.Factors,
			Impact:     f.Impact,
			Mitigation: f.MitigationStrategies,
		})
	}
	blob, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode prompt payload: %w", err)
	}

	var b strings.Builder
	b.WriteString("Review the business model below and report at most 8 findings.\n")
	b.WriteString("Only reference sections and forces present in the input. Do not restate empty sections as findings.\n")
	b.WriteString("Use type=threat for competitive pressure, opportunity for openings, warning for inconsistencies, suggestion for improvements, validation for confirmed strengths.\n\n")
	fmt.Fprintf(&b, "INPUT:\n%s\n\n", blob)
	fmt.Fprintf(&b, "SCHEMA:\n%s\n", responseSchema)
	return b.String(), nil
}
