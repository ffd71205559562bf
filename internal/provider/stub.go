package provider

import "context"

// stubPayload is a fixed, well-formed response with plausible field values.
// It lets the full pipeline run in environments with no reachable backend.
const stubPayload = `{
  "Answer": "yes",
  "Reason": "Positive urea breath test documented",
  "Evidence": ["Positive urea breath test"],
  "Confidence": 0.9
}`

// stubModel answers every prompt with stubPayload. It performs no I/O of any
// kind.
type stubModel struct{}

// NewStub returns the deterministic stub backend.
func NewStub() Model { return stubModel{} }

func (stubModel) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return stubPayload, nil
}
