package assessment

import (
	"encoding/json"
	"fmt"
)

// ReportFromEnvelope reconstructs a Report from a saved envelope so the
// markdown can be re-rendered without re-running the assessment.
func ReportFromEnvelope(env ResponseEnvelope) (Report, error) {
	r := Report{Metadata: env.Metadata}
	if err := decodeStageOutput(env.StageOutputs, outputSnapshot, &r.Snapshot); err != nil {
		return Report{}, err
	}
	if err := decodeStageOutput(env.StageOutputs, outputScores, &r.Scores); err != nil {
		return Report{}, err
	}
	if err := decodeOptionalStageOutput(env.StageOutputs, outputValidation, &r.Validation); err != nil {
		return Report{}, err
	}
	if err := decodeOptionalStageOutput(env.StageOutputs, outputInsights, &r.Insights); err != nil {
		return Report{}, err
	}
	if err := decodePointerStageOutput(env.StageOutputs, outputPosition, &r.Position); err != nil {
		return Report{}, err
	}
	return r, nil
}

// RebuildResponseFromEnvelope regenerates report markdown from a saved envelope.
func RebuildResponseFromEnvelope(env ResponseEnvelope) (ResponseEnvelope, error) {
	r, err := ReportFromEnvelope(env)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return BuildResponse(r), nil
}

func decodeStageOutput(outputs map[string]any, key string, out any) error {
	raw, ok := outputs[key]
	if !ok || raw == nil {
		return fmt.Errorf("stage output %q is required", key)
	}
	return remarshal(raw, key, out)
}

func decodeOptionalStageOutput(outputs map[string]any, key string, out any) error {
	raw, ok := outputs[key]
	if !ok || raw == nil {
		return nil
	}
	return remarshal(raw, key, out)
}

func decodePointerStageOutput[T any](outputs map[string]any, key string, out **T) error {
	raw, ok := outputs[key]
	if !ok || raw == nil {
		*out = nil
		return nil
	}
	var decoded T
	if err := remarshal(raw, key, &decoded); err != nil {
		return err
	}
	*out = &decoded
	return nil
}

func remarshal(raw any, key string, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("stage output %q marshal: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("stage output %q decode: %w", key, err)
	}
	return nil
}
