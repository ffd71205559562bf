// Package prompt renders a (patient record, question) pair into model input.
//
// The rendering is deterministic: the same record and question always produce
// the same prompt, byte for byte, except for the derived age, which tracks
// the wall clock unless the caller pins Now.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ssomangili/medextract/internal/schema"
)

// RecentNotes is how many of the latest free-text notes are rendered in full.
// Older notes are still present in the serialized timeline.
const RecentNotes = 3

// contract is the literal output format the model is held to. The parser's
// fallback chain exists for the models that ignore it.
const contract = `You are a medical analyst. Return JSON with:
1. A clear answer
2. Clinical reasoning
3. Supporting evidence from the timeline

Format MUST be:
{
  "Answer": "yes|no|unknown",
  "Reason": "string",
  "Evidence": ["string"],
  "Confidence": 0-1
}
`

// Builder renders prompts. The zero value uses the real clock.
type Builder struct {
	// Now supplies the reference time for age derivation. Nil means
	// time.Now.
	Now func() time.Time
}

// Build renders the full prompt for one analysis: output contract, patient
// summary, question, recent notes, and the complete timeline as structured
// reference data.
func (b Builder) Build(rec *schema.PatientRecord, question string) (string, error) {
	timelineJSON, err := json.MarshalIndent(rec.Timeline, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize timeline: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(contract)

	sb.WriteString("\nPatient Information:\n")
	sb.WriteString(fmt.Sprintf("Patient ID: %s\n", rec.PatientID))
	sb.WriteString(fmt.Sprintf("Name: %s\n", rec.Demographics.Name))
	sb.WriteString(fmt.Sprintf("Age: %d years\n", b.age(rec.Demographics.DOB)))
	sb.WriteString(fmt.Sprintf("Gender: %s\n", rec.Demographics.Gender))
	sb.WriteString(fmt.Sprintf("Race: %s\n", rec.Demographics.Race))
	sb.WriteString(fmt.Sprintf("Conditions: %s\n", conditionList(rec.Timeline)))

	sb.WriteString(fmt.Sprintf("\nQuestion: %s\n", question))

	sb.WriteString("\nRecent Clinical Notes (analyze these chronologically):\n")
	notes := recentNotes(rec.Timeline, RecentNotes)
	if len(notes) == 0 {
		sb.WriteString("None\n")
	} else {
		sb.WriteString(strings.Join(notes, "\n\n"))
		sb.WriteString("\n")
	}

	sb.WriteString("\nFull Timeline (reference as needed):\n")
	sb.Write(timelineJSON)
	sb.WriteString("\n\nReturn valid JSON ONLY:\n")

	return sb.String(), nil
}

// age derives whole years elapsed between the date of birth and the
// reference time. A malformed DOB never aborts prompt construction; the age
// just reads as 0.
func (b Builder) age(dob string) int {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	birth, err := time.Parse(schema.DateLayout, dob)
	if err != nil {
		// Editors sometimes paste full timestamps; take the date part.
		birth, err = time.Parse(schema.DateLayout, strings.SplitN(dob, "T", 2)[0])
		if err != nil {
			return 0
		}
	}
	ref := now()
	years := ref.Year() - birth.Year()
	if ref.Month() < birth.Month() ||
		(ref.Month() == birth.Month() && ref.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// conditionList joins the distinct condition names mentioned across the
// timeline, in order of first appearance.
func conditionList(timeline []schema.TimelineEvent) string {
	seen := make(map[string]bool)
	var ordered []string
	for _, ev := range timeline {
		if ev.Content == nil {
			continue
		}
		for _, name := range ev.Content.ConditionNames() {
			if !seen[name] {
				seen[name] = true
				ordered = append(ordered, name)
			}
		}
	}
	if len(ordered) == 0 {
		return "None"
	}
	return strings.Join(ordered, ", ")
}

// recentNotes returns the last n non-empty free-text notes by timeline order.
func recentNotes(timeline []schema.TimelineEvent, n int) []string {
	var notes []string
	for _, ev := range timeline {
		if ev.Content == nil {
			continue
		}
		if note := ev.Content.NoteText(); note != "" {
			notes = append(notes, note)
		}
	}
	if len(notes) > n {
		notes = notes[len(notes)-n:]
	}
	return notes
}
