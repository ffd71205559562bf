package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// MinNoteLen is the shortest acceptable free-text clinical note. Office-visit
// and discharge notes below this length are rejected as trivially empty.
const MinNoteLen = 20

var patientIDRe = regexp.MustCompile(`^PT\d{3,6}$`)

var (
	validGenders = map[string]bool{"M": true, "F": true}
	validRaces   = map[string]bool{
		"White": true, "Black": true, "Asian": true, "Hispanic": true, "Other": true,
	}
	validDispositions = map[string]bool{
		"Home": true, "Rehab": true, "SNF": true, "Hospice": true,
	}
	validFollowUpUnits = map[string]bool{
		"days": true, "weeks": true, "months": true,
	}
)

// ValidationError reports one structural or temporal violation in a patient
// record. The Field path is dotted, with timeline indices in brackets.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid patient record: %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Validate decodes and validates raw patient JSON. It is the single gate for
// externally edited records; downstream components assume any *PatientRecord
// they are handed has passed it.
func Validate(data []byte) (*PatientRecord, error) {
	var rec PatientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &ValidationError{Field: "(document)", Msg: err.Error()}
	}
	if err := ValidateRecord(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ValidateRecord checks an already-decoded record against the schema
// invariants. It never mutates the record; a non-chronological timeline is
// rejected, not reordered.
func ValidateRecord(rec *PatientRecord) error {
	if !patientIDRe.MatchString(rec.PatientID) {
		return invalid("patient_id", "%q does not match PT followed by 3-6 digits", rec.PatientID)
	}
	if err := validateDemographics(rec.Demographics); err != nil {
		return err
	}
	if len(rec.Timeline) == 0 {
		return invalid("timeline", "must contain at least one event")
	}

	var prev time.Time
	for i, ev := range rec.Timeline {
		field := fmt.Sprintf("timeline[%d]", i)
		day, err := time.Parse(DateLayout, ev.Date)
		if err != nil {
			return invalid(field+".date", "%q is not a %s date", ev.Date, DateLayout)
		}
		if day.Before(prev) {
			return invalid(field+".date", "%s is earlier than the preceding event", ev.Date)
		}
		prev = day
		if ev.Content == nil {
			return invalid(field+".content", "missing")
		}
		if err := validateContent(field, ev); err != nil {
			return err
		}
	}
	return nil
}

func validateDemographics(d Demographics) error {
	if d.Name == "" {
		return invalid("demographics.name", "required")
	}
	if _, err := time.Parse(DateLayout, d.DOB); err != nil {
		return invalid("demographics.dob", "%q is not a %s date", d.DOB, DateLayout)
	}
	if !validGenders[d.Gender] {
		return invalid("demographics.gender", "%q is not one of M, F", d.Gender)
	}
	if !validRaces[d.Race] {
		return invalid("demographics.race", "%q is not a recognized value", d.Race)
	}
	return nil
}

func validateContent(field string, ev TimelineEvent) error {
	switch c := ev.Content.(type) {
	case *InitialAssessment:
		if len(c.Conditions) == 0 {
			return invalid(field+".content.conditions", "must name at least one condition")
		}
	case *OfficeVisit:
		if c.Condition == "" {
			return invalid(field+".content.condition", "required")
		}
		if len(c.Note) < MinNoteLen {
			return invalid(field+".content.note", "shorter than %d characters", MinNoteLen)
		}
	case *HospitalAdmission:
		if c.Condition == "" {
			return invalid(field+".content.condition", "required")
		}
	case *DischargeSummary:
		if c.Condition == "" {
			return invalid(field+".content.condition", "required")
		}
		if !validDispositions[c.Disposition] {
			return invalid(field+".content.disposition", "%q is not one of Home, Rehab, SNF, Hospice", c.Disposition)
		}
		if c.FollowUp.Count <= 0 || !validFollowUpUnits[c.FollowUp.Unit] {
			return invalid(field+".content.follow_up", "%q is not a positive interval in days, weeks, or months", c.FollowUp)
		}
		if len(c.Note) < MinNoteLen {
			return invalid(field+".content.note", "shorter than %d characters", MinNoteLen)
		}
		if c.Procedure != nil && *c.Procedure != "" && (c.ProcedureICD10 == nil || *c.ProcedureICD10 == "") {
			return invalid(field+".content.procedure_icd10", "required when a procedure is present")
		}
	default:
		return invalid(field+".content", "unrecognized content type %T", ev.Content)
	}
	return nil
}
