// Package parse recovers a structured clinical answer from raw model output.
//
// The model is a free-text producer, not a cooperative API: it wraps JSON in
// code fences, narrates around it, single-quotes it, or abandons JSON
// entirely. Parsing is therefore an ordered list of strategies, each a pure
// text transform tried in sequence; only when every strategy fails does the
// caller see a Failure carrying the original text.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ssomangili/medextract/internal/schema"
)

// Result holds the fields recovered from one model response. Fields absent
// from the response sit at their declared defaults.
type Result struct {
	Answer     string
	Reason     string
	Evidence   []string
	Confidence float64

	Condition    string
	Treatments   []schema.Treatment
	Tests        []schema.TestResult
	Symptoms     []schema.Symptom
	HasCondition bool
	WasTreated   bool
}

// Failure is returned when no strategy could reduce the text to a Result.
// Raw preserves the model's exact output for operator diagnosis.
type Failure struct {
	Raw string
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("unparseable model response: %v", f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ValidAnswers is the closed answer vocabulary. Anything else the model says
// is read as "unknown".
var ValidAnswers = map[string]bool{
	"yes": true, "no": true, "unknown": true, "error": true,
}

type strategy struct {
	name string
	fn   func(string) (*Result, error)
}

var strategies = []strategy{
	{"direct", decodeDirect},
	{"fenced", decodeFenced},
	{"braced", decodeBraced},
	{"repaired", decodeRepaired},
	{"scavenged", scavenge},
}

// Parse runs the strategy chain over raw model output. Every strategy is
// tried before failure is surfaced; the first error seen is the one reported,
// since later strategies are progressively lossier.
func Parse(raw string) (*Result, error) {
	text := strings.TrimSpace(raw)
	var firstErr error
	for _, s := range strategies {
		res, err := s.fn(text)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", s.name, err)
			}
			continue
		}
		return res, nil
	}
	if firstErr == nil {
		firstErr = errors.New("empty response")
	}
	return nil, &Failure{Raw: raw, Err: firstErr}
}

// payload mirrors the output contract. encoding/json matches keys
// case-insensitively, so "Answer" and "answer" both land here.
type payload struct {
	Answer     json.RawMessage `json:"answer"`
	Reason     string          `json:"reason"`
	Evidence   []string        `json:"evidence"`
	Confidence json.RawMessage `json:"confidence"`

	Condition    string              `json:"condition"`
	Treatments   []schema.Treatment  `json:"treatments"`
	Tests        []schema.TestResult `json:"tests"`
	Symptoms     []schema.Symptom    `json:"symptoms"`
	HasCondition bool                `json:"has_condition"`
	WasTreated   bool                `json:"was_treated"`
}

func decodeDirect(text string) (*Result, error) {
	return decodePayload(text)
}

// decodeFenced strips ```json / ``` fences the model added despite
// instructions, then decodes.
func decodeFenced(text string) (*Result, error) {
	stripped := stripFences(text)
	if stripped == text {
		return nil, errors.New("no code fence present")
	}
	return decodePayload(stripped)
}

// decodeBraced decodes the substring between the first '{' and the last '}',
// discarding leading and trailing commentary.
func decodeBraced(text string) (*Result, error) {
	inner, ok := braceSlice(text)
	if !ok {
		return nil, errors.New("no JSON object delimiters found")
	}
	return decodePayload(inner)
}

// decodeRepaired applies light syntactic repairs to the braced substring and
// retries: single quotes to double quotes, doubled escapes collapsed, bare
// object keys quoted.
func decodeRepaired(text string) (*Result, error) {
	inner, ok := braceSlice(stripFences(text))
	if !ok {
		return nil, errors.New("no JSON object delimiters found")
	}
	return decodePayload(repair(inner))
}

func decodePayload(text string) (*Result, error) {
	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, err
	}
	if p.Answer == nil && p.Reason == "" {
		return nil, errors.New("decoded object has neither answer nor reason")
	}
	res := &Result{
		Answer:       NormalizeAnswer(decodeAnswer(p.Answer)),
		Reason:       p.Reason,
		Evidence:     p.Evidence,
		Confidence:   coerceConfidence(p.Confidence),
		Condition:    p.Condition,
		Treatments:   p.Treatments,
		Tests:        p.Tests,
		Symptoms:     p.Symptoms,
		HasCondition: p.HasCondition,
		WasTreated:   p.WasTreated,
	}
	applyDefaults(res)
	return res, nil
}

// decodeAnswer tolerates the model answering with a bare boolean instead of
// the contracted string enum.
func decodeAnswer(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "yes"
		}
		return "no"
	}
	return ""
}

// NormalizeAnswer lowercases and folds any out-of-vocabulary answer to
// "unknown". An empty answer also normalizes to "unknown"; presence checks
// happen before normalization.
func NormalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if ValidAnswers[s] {
		return s
	}
	return "unknown"
}

// coerceConfidence bounds confidence to [0, 1]. Non-numeric and out-of-range
// values are read as 0, not clamped: a model reporting confidence 7 is not
// 100% confident, it is talking nonsense.
func coerceConfidence(raw json.RawMessage) float64 {
	if raw == nil {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = parsed
	}
	if f < 0 || f > 1 {
		return 0
	}
	return f
}

func applyDefaults(res *Result) {
	if res.Reason == "" {
		res.Reason = "No reason provided"
	}
	if res.Evidence == nil {
		res.Evidence = []string{}
	}
	if res.Treatments == nil {
		res.Treatments = []schema.Treatment{}
	}
	if res.Tests == nil {
		res.Tests = []schema.TestResult{}
	}
	if res.Symptoms == nil {
		res.Symptoms = []schema.Symptom{}
	}
}
