package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LabResult is a single lab value: numeric (Cr 1.2) or qualitative
// ("120/80", "Positive"), with an optional unit. No range checking is done
// here; the record only promises a well-typed value.
type LabResult struct {
	Value   float64
	Text    string
	Unit    string
	numeric bool
}

// NumericLab returns a numeric lab result.
func NumericLab(v float64, unit string) LabResult {
	return LabResult{Value: v, Unit: unit, numeric: true}
}

// QualitativeLab returns a free-text lab result.
func QualitativeLab(s string, unit string) LabResult {
	return LabResult{Text: s, Unit: unit}
}

// IsNumeric reports whether the result carries a numeric value.
func (l LabResult) IsNumeric() bool { return l.numeric }

func (l LabResult) String() string {
	var s string
	if l.numeric {
		s = strconv.FormatFloat(l.Value, 'f', -1, 64)
	} else {
		s = l.Text
	}
	if l.Unit != "" {
		s += " " + l.Unit
	}
	return s
}

// Lab values arrive in three wire shapes: a bare number, a bare string, or
// an object {"value": ..., "unit": "..."}. All three are accepted; marshaling
// reproduces the shape that was read.
func (l *LabResult) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*l = NumericLab(num, "")
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*l = QualitativeLab(text, "")
		return nil
	}
	var obj struct {
		Value json.RawMessage `json:"value"`
		Unit  string          `json:"unit"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("lab result: %w", err)
	}
	if len(obj.Value) == 0 {
		return fmt.Errorf("lab result object missing value")
	}
	if err := json.Unmarshal(obj.Value, &num); err == nil {
		*l = NumericLab(num, obj.Unit)
		return nil
	}
	if err := json.Unmarshal(obj.Value, &text); err == nil {
		*l = QualitativeLab(text, obj.Unit)
		return nil
	}
	return fmt.Errorf("lab result value %s: neither number nor string", obj.Value)
}

func (l LabResult) MarshalJSON() ([]byte, error) {
	if l.Unit != "" {
		if l.numeric {
			return json.Marshal(struct {
				Value float64 `json:"value"`
				Unit  string  `json:"unit"`
			}{l.Value, l.Unit})
		}
		return json.Marshal(struct {
			Value string `json:"value"`
			Unit  string `json:"unit"`
		}{l.Text, l.Unit})
	}
	if l.numeric {
		return json.Marshal(l.Value)
	}
	return json.Marshal(l.Text)
}
