package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const validRecordJSON = `{
	"patient_id": "PT001",
	"demographics": {
		"name": "James Smith",
		"dob": "1960-04-12",
		"gender": "M",
		"race": "White",
		"language": "English"
	},
	"timeline": [
		{
			"date": "2024-01-05",
			"type": "initial_assessment",
			"content": {
				"conditions": {"Hypertension": "I10"},
				"allergies": ["Penicillin"],
				"baseline_labs": {
					"Hypertension": {"BP": "150/95", "Cr": 1.1}
				}
			}
		},
		{
			"date": "2024-03-02",
			"type": "office_visit",
			"content": {
				"condition": "Hypertension",
				"icd10": "I10",
				"labs": {"BP": "138/88"},
				"medications": {"continued": ["Lisinopril"], "new": "Amlodipine"},
				"note": "Patient presents for follow-up of Hypertension. Stable."
			}
		},
		{
			"date": "2024-06-10",
			"type": "hospital_admission",
			"content": {
				"condition": "Hypertension",
				"icd10": "I10",
				"labs": {"BP": "180/110"},
				"note": "Admitted for hypertensive urgency."
			}
		},
		{
			"date": "2024-06-14",
			"type": "discharge_summary",
			"content": {
				"condition": "Hypertension",
				"procedure": "Cardiac Cath",
				"procedure_icd10": "4A023N7",
				"disposition": "Home",
				"follow_up": "2 weeks",
				"note": "Patient hospitalized for Hypertension management. Improved."
			}
		}
	]
}`

func TestValidate_ValidRecord(t *testing.T) {
	rec, err := Validate([]byte(validRecordJSON))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if rec.PatientID != "PT001" {
		t.Errorf("PatientID = %q", rec.PatientID)
	}
	if rec.Demographics.Name != "James Smith" {
		t.Errorf("Name = %q", rec.Demographics.Name)
	}
	if len(rec.Timeline) != 4 {
		t.Fatalf("timeline length = %d, want 4", len(rec.Timeline))
	}

	// Union variants decoded to the right content types
	if _, ok := rec.Timeline[0].Content.(*InitialAssessment); !ok {
		t.Errorf("timeline[0] content = %T", rec.Timeline[0].Content)
	}
	visit, ok := rec.Timeline[1].Content.(*OfficeVisit)
	if !ok {
		t.Fatalf("timeline[1] content = %T", rec.Timeline[1].Content)
	}
	if visit.Medications.New == nil || *visit.Medications.New != "Amlodipine" {
		t.Errorf("new medication = %v", visit.Medications.New)
	}
	discharge, ok := rec.Timeline[3].Content.(*DischargeSummary)
	if !ok {
		t.Fatalf("timeline[3] content = %T", rec.Timeline[3].Content)
	}
	if discharge.FollowUp != (FollowUp{Count: 2, Unit: "weeks"}) {
		t.Errorf("follow_up = %+v", discharge.FollowUp)
	}
}

func TestValidate_RoundTripContent(t *testing.T) {
	rec, err := Validate([]byte(validRecordJSON))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	rec2, err := Validate(out)
	if err != nil {
		t.Fatalf("Validate round-trip: %v", err)
	}
	out2, err := json.Marshal(rec2)
	if err != nil {
		t.Fatalf("Marshal round-trip: %v", err)
	}
	if string(out) != string(out2) {
		t.Errorf("round-trip not stable:\n%s\n%s", out, out2)
	}
}

func TestValidate_Rejections(t *testing.T) {
	mutate := func(fn func(m map[string]any)) []byte {
		var m map[string]any
		if err := json.Unmarshal([]byte(validRecordJSON), &m); err != nil {
			t.Fatal(err)
		}
		fn(m)
		out, err := json.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	timeline := func(m map[string]any) []any { return m["timeline"].([]any) }
	content := func(m map[string]any, i int) map[string]any {
		return timeline(m)[i].(map[string]any)["content"].(map[string]any)
	}

	tests := []struct {
		name      string
		input     []byte
		wantField string
	}{
		{
			"bad patient id",
			mutate(func(m map[string]any) { m["patient_id"] = "patient-1" }),
			"patient_id",
		},
		{
			"missing name",
			mutate(func(m map[string]any) {
				m["demographics"].(map[string]any)["name"] = ""
			}),
			"demographics.name",
		},
		{
			"bad gender",
			mutate(func(m map[string]any) {
				m["demographics"].(map[string]any)["gender"] = "X"
			}),
			"demographics.gender",
		},
		{
			"malformed dob",
			mutate(func(m map[string]any) {
				m["demographics"].(map[string]any)["dob"] = "April 1960"
			}),
			"demographics.dob",
		},
		{
			"empty timeline",
			mutate(func(m map[string]any) { m["timeline"] = []any{} }),
			"timeline",
		},
		{
			"unsorted timeline",
			mutate(func(m map[string]any) {
				timeline(m)[1].(map[string]any)["date"] = "2023-12-31"
			}),
			"timeline[1].date",
		},
		{
			"short clinical note",
			mutate(func(m map[string]any) {
				content(m, 1)["note"] = "ok"
			}),
			"timeline[1].content.note",
		},
		{
			"bad disposition",
			mutate(func(m map[string]any) {
				content(m, 3)["disposition"] = "Elsewhere"
			}),
			"timeline[3].content.disposition",
		},
		{
			"procedure without code",
			mutate(func(m map[string]any) {
				delete(content(m, 3), "procedure_icd10")
			}),
			"timeline[3].content.procedure_icd10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T: %v", err, err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q (%v)", verr.Field, tt.wantField, err)
			}
		})
	}
}

func TestValidate_UnknownEventType(t *testing.T) {
	input := strings.Replace(validRecordJSON, `"office_visit"`, `"televisit"`, 1)
	_, err := Validate([]byte(input))
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if !strings.Contains(err.Error(), "televisit") {
		t.Errorf("error should name the unknown type: %v", err)
	}
}

func TestLabResult_WireShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		numeric bool
		want    string
	}{
		{"bare number", `7.1`, true, "7.1"},
		{"bare string", `"120/80"`, false, "120/80"},
		{"object numeric", `{"value": 1.2, "unit": "mg/dL"}`, true, "1.2 mg/dL"},
		{"object text", `{"value": "Positive", "unit": ""}`, false, "Positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l LabResult
			if err := json.Unmarshal([]byte(tt.input), &l); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if l.IsNumeric() != tt.numeric {
				t.Errorf("IsNumeric = %v", l.IsNumeric())
			}
			if l.String() != tt.want {
				t.Errorf("String = %q, want %q", l.String(), tt.want)
			}

			// The shape read back out must re-validate identically.
			out, err := json.Marshal(l)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var l2 LabResult
			if err := json.Unmarshal(out, &l2); err != nil {
				t.Fatalf("re-unmarshal %s: %v", out, err)
			}
			if l2 != l {
				t.Errorf("round-trip changed value: %+v vs %+v", l, l2)
			}
		})
	}

	var l LabResult
	if err := json.Unmarshal([]byte(`[1,2]`), &l); err == nil {
		t.Error("expected error for array-shaped lab value")
	}
}

func TestFollowUp_Parse(t *testing.T) {
	tests := []struct {
		input   string
		want    FollowUp
		wantErr bool
	}{
		{`"2 weeks"`, FollowUp{2, "weeks"}, false},
		{`"1 week"`, FollowUp{1, "weeks"}, false},
		{`"10 days"`, FollowUp{10, "days"}, false},
		{`"3 Months"`, FollowUp{3, "months"}, false},
		{`"soon"`, FollowUp{}, true},
		{`"x weeks"`, FollowUp{}, true},
	}
	for _, tt := range tests {
		var f FollowUp
		err := json.Unmarshal([]byte(tt.input), &f)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.input, err)
			continue
		}
		if f != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.input, f, tt.want)
		}
	}
}

func TestFailedResult_Shape(t *testing.T) {
	rec, err := Validate([]byte(validRecordJSON))
	if err != nil {
		t.Fatal(err)
	}

	res := FailedResult(rec, "Does the patient have CHF?", "model invocation failed", "garbage output")

	if res.Succeeded() {
		t.Error("failed result reports success")
	}
	if res.Error == "" || res.RawResponse != "garbage output" {
		t.Errorf("error/raw = %q / %q", res.Error, res.RawResponse)
	}
	// Failure must never masquerade as a populated success.
	if len(res.Evidence) != 0 || len(res.Treatments) != 0 || len(res.Tests) != 0 || len(res.Symptoms) != 0 {
		t.Error("failed result carries populated lists")
	}
	if res.HasCondition || res.WasTreated {
		t.Error("failed result carries true booleans")
	}
	if res.PatientInfo.ID != "PT001" {
		t.Errorf("patient id = %q", res.PatientInfo.ID)
	}
}
