package extract

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ssomangili/medextract/internal/provider"
	"github.com/ssomangili/medextract/internal/schema"
)

// scriptedModel returns each step in order, repeating the last one.
type scriptedModel struct {
	steps []step
	calls int
}

type step struct {
	out string
	err error
}

func (m *scriptedModel) Invoke(ctx context.Context, prompt string) (string, error) {
	i := m.calls
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	m.calls++
	s := m.steps[i]
	return s.out, s.err
}

func hPyloriRecord(t *testing.T) *schema.PatientRecord {
	t.Helper()
	rec, err := schema.Validate([]byte(`{
		"patient_id": "PT001",
		"demographics": {
			"name": "Robert Williams",
			"dob": "1970-03-15",
			"gender": "M",
			"race": "White",
			"language": "English"
		},
		"timeline": [
			{
				"date": "2024-05-01",
				"type": "office_visit",
				"content": {
					"condition": "H. pylori",
					"icd10": "B96.81",
					"labs": {"Urea Breath Test": "Positive"},
					"medications": {"continued": []},
					"note": "Urea breath test returned positive for H. pylori."
				}
			}
		]
	}`))
	if err != nil {
		t.Fatalf("record invalid: %v", err)
	}
	return rec
}

const goodResponse = `{"Answer":"yes","Reason":"Positive urea breath test documented","Evidence":["Positive urea breath test"],"Confidence":0.9}`

func newTestExtractor(m provider.Model, opts ...Option) *Extractor {
	opts = append([]Option{WithRetryWait(time.Millisecond)}, opts...)
	return New(m, opts...)
}

func TestExtract_EndToEnd(t *testing.T) {
	model := &scriptedModel{steps: []step{{out: goodResponse}}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "Did the patient have H. pylori?")

	if !res.Succeeded() {
		t.Fatalf("extraction failed: %s", res.Error)
	}
	if res.Answer != "yes" {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if !reflect.DeepEqual(res.Evidence, []string{"Positive urea breath test"}) {
		t.Errorf("evidence = %v", res.Evidence)
	}
	if res.PatientInfo.ID != "PT001" {
		t.Errorf("patient id = %q", res.PatientInfo.ID)
	}
	// No condition in the payload: the question stands in for the label.
	if res.Condition != "Did the patient have H. pylori?" {
		t.Errorf("condition = %q", res.Condition)
	}
	if model.calls != 1 {
		t.Errorf("calls = %d, want 1", model.calls)
	}
}

func TestExtract_RetrySucceedsOnThirdAttempt(t *testing.T) {
	model := &scriptedModel{steps: []step{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{out: goodResponse},
	}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "Did the patient have H. pylori?")

	if !res.Succeeded() {
		t.Fatalf("expected success on third attempt: %s", res.Error)
	}
	if res.Answer != "yes" {
		t.Errorf("answer = %q", res.Answer)
	}
	if model.calls != 3 {
		t.Errorf("calls = %d, want 3", model.calls)
	}
}

func TestExtract_RetryBoundHonored(t *testing.T) {
	model := &scriptedModel{steps: []step{{err: errors.New("connection reset")}}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "q")

	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if model.calls != DefaultAttempts {
		t.Errorf("calls = %d, want %d", model.calls, DefaultAttempts)
	}
	if res.RawResponse != "(no response)" {
		t.Errorf("raw = %q, want placeholder", res.RawResponse)
	}
	if res.Error == "" {
		t.Error("failed result has empty error")
	}
}

func TestExtract_ConfiguredAttempts(t *testing.T) {
	model := &scriptedModel{steps: []step{{err: errors.New("down")}}}
	ex := newTestExtractor(model, WithAttempts(5))

	res := ex.Extract(context.Background(), hPyloriRecord(t), "q")
	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if model.calls != 5 {
		t.Errorf("calls = %d, want 5", model.calls)
	}
}

func TestExtract_ParseFailureIsRetried(t *testing.T) {
	model := &scriptedModel{steps: []step{
		{out: "total garbage, no json here"},
		{out: goodResponse},
	}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "q")
	if !res.Succeeded() {
		t.Fatalf("parse failure on a non-final attempt should be retried: %s", res.Error)
	}
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
}

func TestExtract_ParseFailureCarriesRawText(t *testing.T) {
	model := &scriptedModel{steps: []step{{out: "total garbage, no json here"}}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "q")
	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if model.calls != DefaultAttempts {
		t.Errorf("calls = %d, want %d", model.calls, DefaultAttempts)
	}
	if res.RawResponse != "total garbage, no json here" {
		t.Errorf("raw = %q, original model output not preserved", res.RawResponse)
	}
	if len(res.Evidence) != 0 || res.HasCondition || res.WasTreated {
		t.Error("failure carries non-default extracted values")
	}
}

func TestExtract_MissingCredentialNotRetried(t *testing.T) {
	model := &scriptedModel{steps: []step{
		{err: &provider.CredentialError{Provider: provider.OpenAI}},
	}}
	ex := newTestExtractor(model)

	res := ex.Extract(context.Background(), hPyloriRecord(t), "q")
	if res.Succeeded() {
		t.Fatal("expected failure")
	}
	if model.calls != 1 {
		t.Errorf("calls = %d; retrying without a credential cannot succeed", model.calls)
	}
}

func TestExtract_StubProviderPipeline(t *testing.T) {
	// Full pipeline over the deterministic stub: no scripting, no network.
	ex := newTestExtractor(provider.NewStub())

	res := ex.Extract(context.Background(), hPyloriRecord(t), "Did the patient have H. pylori?")
	if !res.Succeeded() {
		t.Fatalf("stub pipeline failed: %s", res.Error)
	}
	if res.Answer != "yes" || res.Confidence != 0.9 {
		t.Errorf("answer/confidence = %q/%v", res.Answer, res.Confidence)
	}
}

func TestExtract_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{steps: []step{{err: errors.New("down")}}}
	ex := newTestExtractor(model)

	res := ex.Extract(ctx, hPyloriRecord(t), "q")
	if res.Succeeded() {
		t.Fatal("expected failure under cancelled context")
	}
}
