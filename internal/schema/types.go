package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for all timeline and demographic dates.
const DateLayout = "2006-01-02"

// PatientRecord is the root entity for one patient: identity, demographics,
// and a chronologically ordered clinical timeline.
type PatientRecord struct {
	PatientID    string          `json:"patient_id"`
	Demographics Demographics    `json:"demographics"`
	Timeline     []TimelineEvent `json:"timeline"`
}

type Demographics struct {
	Name     string `json:"name"`
	DOB      string `json:"dob"`
	Gender   string `json:"gender"`
	Race     string `json:"race"`
	Language string `json:"language"`
}

// EventType tags the timeline event union.
type EventType string

const (
	EventInitialAssessment EventType = "initial_assessment"
	EventOfficeVisit       EventType = "office_visit"
	EventHospitalAdmission EventType = "hospital_admission"
	EventDischargeSummary  EventType = "discharge_summary"
)

// EventContent is the kind-specific payload of a timeline event.
type EventContent interface {
	// ConditionNames returns the condition names this event mentions,
	// in a stable order.
	ConditionNames() []string
	// NoteText returns the event's free-text clinical note, or "" if the
	// event kind carries none.
	NoteText() string
}

// TimelineEvent is one dated clinical occurrence. The Content variant is
// selected by Type during unmarshaling.
type TimelineEvent struct {
	Date    string       `json:"date"`
	Type    EventType    `json:"type"`
	Content EventContent `json:"content"`
}

// Day parses the event date. The zero time is returned for malformed dates;
// Validate rejects those before they reach any consumer that cares.
func (e TimelineEvent) Day() time.Time {
	t, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (e *TimelineEvent) UnmarshalJSON(data []byte) error {
	var head struct {
		Date    string          `json:"date"`
		Type    EventType       `json:"type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Date = head.Date
	e.Type = head.Type

	if len(head.Content) == 0 {
		return fmt.Errorf("timeline event %q: missing content", head.Type)
	}

	var content EventContent
	switch head.Type {
	case EventInitialAssessment:
		content = &InitialAssessment{}
	case EventOfficeVisit:
		content = &OfficeVisit{}
	case EventHospitalAdmission:
		content = &HospitalAdmission{}
	case EventDischargeSummary:
		content = &DischargeSummary{}
	default:
		return fmt.Errorf("unknown timeline event type %q", head.Type)
	}
	if err := json.Unmarshal(head.Content, content); err != nil {
		return fmt.Errorf("decode %s content: %w", head.Type, err)
	}
	e.Content = content
	return nil
}

// InitialAssessment records baseline conditions, allergies, and labs taken
// at intake.
type InitialAssessment struct {
	Conditions   map[string]string               `json:"conditions"`
	Allergies    []string                        `json:"allergies"`
	BaselineLabs map[string]map[string]LabResult `json:"baseline_labs"`
}

func (a *InitialAssessment) ConditionNames() []string {
	names := make([]string, 0, len(a.Conditions))
	for name := range a.Conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *InitialAssessment) NoteText() string { return "" }

// MedicationChanges lists continued medications plus an optional new start.
type MedicationChanges struct {
	Continued []string `json:"continued"`
	New       *string  `json:"new"`
}

// OfficeVisit is an outpatient encounter for a single condition.
type OfficeVisit struct {
	Condition   string               `json:"condition"`
	ICD10       string               `json:"icd10"`
	Labs        map[string]LabResult `json:"labs"`
	Medications MedicationChanges    `json:"medications"`
	Note        string               `json:"note"`
}

func (v *OfficeVisit) ConditionNames() []string {
	if v.Condition == "" {
		return nil
	}
	return []string{v.Condition}
}

func (v *OfficeVisit) NoteText() string { return v.Note }

// HospitalAdmission opens an inpatient stay.
type HospitalAdmission struct {
	Condition string               `json:"condition"`
	ICD10     string               `json:"icd10"`
	Labs      map[string]LabResult `json:"labs"`
	Note      string               `json:"note"`
}

func (h *HospitalAdmission) ConditionNames() []string {
	if h.Condition == "" {
		return nil
	}
	return []string{h.Condition}
}

func (h *HospitalAdmission) NoteText() string { return h.Note }

// DischargeSummary closes an inpatient stay.
type DischargeSummary struct {
	Condition      string   `json:"condition"`
	Procedure      *string  `json:"procedure"`
	ProcedureICD10 *string  `json:"procedure_icd10"`
	Disposition    string   `json:"disposition"`
	FollowUp       FollowUp `json:"follow_up"`
	Note           string   `json:"note"`
}

func (d *DischargeSummary) ConditionNames() []string {
	if d.Condition == "" {
		return nil
	}
	return []string{d.Condition}
}

func (d *DischargeSummary) NoteText() string { return d.Note }

// FollowUp is a discharge follow-up interval, serialized as "N <unit>"
// (e.g. "2 weeks").
type FollowUp struct {
	Count int
	Unit  string // days, weeks, months
}

func (f FollowUp) String() string {
	return fmt.Sprintf("%d %s", f.Count, f.Unit)
}

func (f FollowUp) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *FollowUp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return fmt.Errorf("follow_up %q: want \"<count> <unit>\"", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("follow_up %q: %w", s, err)
	}
	unit := strings.ToLower(fields[1])
	// Accept the singular forms the generator never emits but editors type.
	unit = strings.TrimSuffix(unit, "s") + "s"
	f.Count = n
	f.Unit = unit
	return nil
}
