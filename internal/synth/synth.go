// Package synth generates synthetic one-year patient records for demos and
// tests. Output always satisfies the schema invariants; the pipeline treats
// generated and user-supplied records identically past the validation gate.
package synth

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ssomangili/medextract/internal/schema"
)

type condition struct {
	Name  string
	ICD10 string
	Labs  []labGen
	Meds  []string
}

type labGen struct {
	Name string
	Gen  func(*rand.Rand) schema.LabResult
}

type procedure struct {
	Name  string
	ICD10 string
}

var conditions = []condition{
	{
		Name: "Hypertension", ICD10: "I10",
		Labs: []labGen{
			{"BP", func(r *rand.Rand) schema.LabResult {
				return schema.QualitativeLab(fmt.Sprintf("%d/%d", 110+r.Intn(71), 70+r.Intn(51)), "mmHg")
			}},
			{"Cr", func(r *rand.Rand) schema.LabResult {
				return schema.NumericLab(round1(0.6+r.Float64()*1.9), "mg/dL")
			}},
		},
		Meds: []string{"Lisinopril", "Amlodipine", "HCTZ"},
	},
	{
		Name: "Diabetes", ICD10: "E11.9",
		Labs: []labGen{
			{"HbA1c", func(r *rand.Rand) schema.LabResult {
				return schema.NumericLab(round1(5.0+r.Float64()*7.0), "%")
			}},
			{"Glucose", func(r *rand.Rand) schema.LabResult {
				return schema.NumericLab(float64(80+r.Intn(271)), "mg/dL")
			}},
		},
		Meds: []string{"Metformin", "Glipizide", "Insulin glargine"},
	},
	{
		Name: "COPD", ICD10: "J44.9",
		Labs: []labGen{
			{"FEV1", func(r *rand.Rand) schema.LabResult {
				return schema.QualitativeLab(fmt.Sprintf("%d%%", 30+r.Intn(51)), "")
			}},
			{"O2 Sat", func(r *rand.Rand) schema.LabResult {
				return schema.QualitativeLab(fmt.Sprintf("%d%%", 88+r.Intn(13)), "")
			}},
		},
		Meds: []string{"Tiotropium", "Albuterol", "Prednisone"},
	},
	{
		Name: "CHF", ICD10: "I50.9",
		Labs: []labGen{
			{"BNP", func(r *rand.Rand) schema.LabResult {
				return schema.NumericLab(float64(100+r.Intn(1901)), "pg/mL")
			}},
			{"EF", func(r *rand.Rand) schema.LabResult {
				return schema.QualitativeLab(fmt.Sprintf("%d%%", 20+r.Intn(36)), "")
			}},
		},
		Meds: []string{"Furosemide", "Carvedilol", "Spironolactone"},
	},
}

var allergyGroups = [][]string{
	{"Penicillin"},
	{"Sulfa", "NSAIDs"},
	{"Latex", "Iodine"},
	{"Shellfish"},
	{"None"},
}

var procedures = []procedure{
	{"Colonoscopy", "0DJ08ZZ"},
	{"Knee Replacement", "0SRD0JZ"},
	{"Cardiac Cath", "4A023N7"},
}

// Generator produces synthetic patients. Same seed, same patients.
type Generator struct {
	rng *rand.Rand
	now time.Time
}

// New returns a Generator seeded for reproducibility. The record's one-year
// window ends at now.
func New(seed int64, now time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: now}
}

// Patients generates n patients with IDs PT001, PT002, ...
func (g *Generator) Patients(n int) []*schema.PatientRecord {
	out := make([]*schema.PatientRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Patient(fmt.Sprintf("PT%03d", i+1)))
	}
	return out
}

// Patient generates a complete one-year record.
func (g *Generator) Patient(id string) *schema.PatientRecord {
	conds := g.sampleConditions()
	allergies := allergyGroups[g.rng.Intn(len(allergyGroups))]

	start := g.now.AddDate(-1, 0, 0)
	timeline := []schema.TimelineEvent{g.baseline(start, conds, allergies)}

	cursor := start
	for {
		cursor = cursor.AddDate(0, 0, 28+g.rng.Intn(57))
		if !cursor.Before(g.now) {
			break
		}
		if g.rng.Float64() < 0.15 {
			events, dischargeDay := g.hospitalization(cursor, conds)
			timeline = append(timeline, events...)
			cursor = dischargeDay
		} else {
			timeline = append(timeline, g.officeVisit(cursor, conds, allergies))
		}
	}

	return &schema.PatientRecord{
		PatientID:    id,
		Demographics: g.demographics(),
		Timeline:     timeline,
	}
}

func (g *Generator) sampleConditions() []condition {
	k := 1 + g.rng.Intn(3)
	idx := g.rng.Perm(len(conditions))[:k]
	out := make([]condition, 0, k)
	for _, i := range idx {
		out = append(out, conditions[i])
	}
	return out
}

func (g *Generator) baseline(day time.Time, conds []condition, allergies []string) schema.TimelineEvent {
	names := make(map[string]string, len(conds))
	labs := make(map[string]map[string]schema.LabResult, len(conds))
	for _, c := range conds {
		names[c.Name] = c.ICD10
		labs[c.Name] = g.labs(c)
	}
	return schema.TimelineEvent{
		Date: day.Format(schema.DateLayout),
		Type: schema.EventInitialAssessment,
		Content: &schema.InitialAssessment{
			Conditions:   names,
			Allergies:    allergies,
			BaselineLabs: labs,
		},
	}
}

func (g *Generator) officeVisit(day time.Time, conds []condition, allergies []string) schema.TimelineEvent {
	c := conds[g.rng.Intn(len(conds))]
	meds := schema.MedicationChanges{
		Continued: g.sampleMeds(c.Meds, 1+g.rng.Intn(2)),
	}
	if g.rng.Float64() > 0.7 {
		m := c.Meds[g.rng.Intn(len(c.Meds))]
		meds.New = &m
	}
	return schema.TimelineEvent{
		Date: day.Format(schema.DateLayout),
		Type: schema.EventOfficeVisit,
		Content: &schema.OfficeVisit{
			Condition:   c.Name,
			ICD10:       c.ICD10,
			Labs:        g.labs(c),
			Medications: meds,
			Note:        g.officeNote(c.Name, allergies),
		},
	}
}

func (g *Generator) hospitalization(admitDay time.Time, conds []condition) ([]schema.TimelineEvent, time.Time) {
	c := conds[g.rng.Intn(len(conds))]

	admission := schema.TimelineEvent{
		Date: admitDay.Format(schema.DateLayout),
		Type: schema.EventHospitalAdmission,
		Content: &schema.HospitalAdmission{
			Condition: c.Name,
			ICD10:     c.ICD10,
			Labs:      g.labs(c),
			Note:      fmt.Sprintf("Admitted for acute exacerbation of %s.", c.Name),
		},
	}

	dischargeDay := admitDay.AddDate(0, 0, 3+g.rng.Intn(12))
	content := &schema.DischargeSummary{
		Condition:   c.Name,
		Disposition: []string{"Home", "Rehab", "SNF"}[g.rng.Intn(3)],
		FollowUp:    schema.FollowUp{Count: 1 + g.rng.Intn(4), Unit: "weeks"},
		Note:        g.dischargeNote(c.Name),
	}
	if g.rng.Float64() > 0.5 {
		p := procedures[g.rng.Intn(len(procedures))]
		content.Procedure = &p.Name
		content.ProcedureICD10 = &p.ICD10
	}
	discharge := schema.TimelineEvent{
		Date:    dischargeDay.Format(schema.DateLayout),
		Type:    schema.EventDischargeSummary,
		Content: content,
	}

	return []schema.TimelineEvent{admission, discharge}, dischargeDay
}

func (g *Generator) labs(c condition) map[string]schema.LabResult {
	out := make(map[string]schema.LabResult, len(c.Labs))
	for _, l := range c.Labs {
		out[l.Name] = l.Gen(g.rng)
	}
	return out
}

func (g *Generator) sampleMeds(meds []string, k int) []string {
	if k > len(meds) {
		k = len(meds)
	}
	idx := g.rng.Perm(len(meds))[:k]
	out := make([]string, 0, k)
	for _, i := range idx {
		out = append(out, meds[i])
	}
	return out
}

func (g *Generator) officeNote(cond string, allergies []string) string {
	symptoms := []string{"improved", "stable", "worsening"}
	control := []string{"well controlled", "suboptimally controlled"}
	plans := []string{"Continue current regimen", "Adjust medications", "Refer to specialist"}
	allergyList := "None known"
	if len(allergies) > 0 && allergies[0] != "None" {
		allergyList = strings.Join(allergies, ", ")
	}
	return fmt.Sprintf(
		"Patient presents for follow-up of %s. Reports %s symptoms. Allergies: %s. Assessment: %s %s. Plan: %s.",
		cond,
		symptoms[g.rng.Intn(len(symptoms))],
		allergyList,
		cond,
		control[g.rng.Intn(len(control))],
		plans[g.rng.Intn(len(plans))],
	)
}

func (g *Generator) dischargeNote(cond string) string {
	states := []string{"Improved", "Stable", "Guarded"}
	followers := []string{"PCP", "specialist"}
	return fmt.Sprintf(
		"Patient hospitalized for %s management. Discharge condition: %s. Follow-up in %d weeks with %s.",
		cond,
		states[g.rng.Intn(len(states))],
		1+g.rng.Intn(4),
		followers[g.rng.Intn(len(followers))],
	)
}

func (g *Generator) demographics() schema.Demographics {
	gender := []string{"M", "F"}[g.rng.Intn(2)]
	firstNames := map[string][]string{
		"M": {"James", "John", "Robert", "Michael"},
		"F": {"Mary", "Jennifer", "Linda", "Elizabeth"},
	}
	lastNames := []string{"Smith", "Johnson", "Williams"}
	first := firstNames[gender][g.rng.Intn(4)]
	dob := fmt.Sprintf("%d-%02d-%02d", 1940+g.rng.Intn(61), 1+g.rng.Intn(12), 1+g.rng.Intn(28))
	return schema.Demographics{
		Name:     first + " " + lastNames[g.rng.Intn(len(lastNames))],
		DOB:      dob,
		Gender:   gender,
		Race:     []string{"White", "Black", "Asian", "Hispanic"}[g.rng.Intn(4)],
		Language: []string{"English", "Spanish", "Mandarin"}[g.rng.Intn(3)],
	}
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}
