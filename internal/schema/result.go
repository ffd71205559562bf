package schema

// PatientInfo echoes the identity of the analyzed patient back alongside the
// extraction output.
type PatientInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	DOB  string `json:"dob"`
}

// Treatment is one treatment episode the model attributed to the patient.
type Treatment struct {
	Date        string   `json:"date"`
	Medications []string `json:"medications"`
	Facility    string   `json:"facility,omitempty"`
	Doctor      string   `json:"doctor,omitempty"`
}

// TestResult is one diagnostic test the model identified.
type TestResult struct {
	Date           string `json:"date"`
	TestType       string `json:"test_type"`
	Result         string `json:"result"`
	Facility       string `json:"facility,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
}

// Symptom is one reported symptom with its date.
type Symptom struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

// ExtractionResult is the outcome of one (record, question) analysis. It is
// always fully formed: a failed run carries Error and RawResponse, empty
// lists, and false booleans, never a half-populated success.
type ExtractionResult struct {
	PatientInfo PatientInfo `json:"patient_info"`
	Condition   string      `json:"condition"`

	Answer     string   `json:"answer"`
	Reason     string   `json:"reason"`
	Evidence   []string `json:"evidence"`
	Confidence float64  `json:"confidence"`

	Treatments []Treatment  `json:"treatments"`
	Tests      []TestResult `json:"tests"`
	Symptoms   []Symptom    `json:"symptoms"`

	HasCondition bool `json:"has_condition"`
	WasTreated   bool `json:"was_treated"`

	Error       string `json:"error,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// Succeeded reports whether the extraction produced a usable answer.
func (r *ExtractionResult) Succeeded() bool { return r.Error == "" }

// FailedResult builds the failure shape for a record and question: error and
// raw text set, everything extractable at its declared default.
func FailedResult(rec *PatientRecord, question, errMsg, raw string) *ExtractionResult {
	return &ExtractionResult{
		PatientInfo: PatientInfo{
			ID:   rec.PatientID,
			Name: rec.Demographics.Name,
			DOB:  rec.Demographics.DOB,
		},
		Condition:   question,
		Answer:      "error",
		Evidence:    []string{},
		Treatments:  []Treatment{},
		Tests:       []TestResult{},
		Symptoms:    []Symptom{},
		Error:       errMsg,
		RawResponse: raw,
	}
}
