// Package session holds the working set for one analysis session: the
// patients loaded or generated so far and the extraction runs made against
// them. The store is backed by an in-memory sqlite database, so everything
// vanishes when the session ends; nothing is ever persisted to disk.
package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ssomangili/medextract/internal/schema"
)

const schemaSQL = `
CREATE TABLE patients (
	patient_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	dob        TEXT NOT NULL,
	record     TEXT NOT NULL,
	loaded_at  TEXT NOT NULL
);
CREATE TABLE runs (
	run_id     TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	confidence REAL NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX runs_patient ON runs (patient_id, created_at);
`

// ErrNotFound is returned when a patient ID is not in the session.
var ErrNotFound = errors.New("patient not in session")

// Store is one session's working set.
type Store struct {
	db *sql.DB
}

// PatientSummary is one row of the session's patient list.
type PatientSummary struct {
	PatientID string
	Name      string
	DOB       string
	LoadedAt  time.Time
}

// Run is one recorded extraction call.
type Run struct {
	RunID      string
	PatientID  string
	Question   string
	Answer     string
	Confidence float64
	Error      string
	CreatedAt  time.Time
}

// Open creates a fresh in-memory store.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	// The in-memory database lives on a single connection; a second
	// connection would see an empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close discards the session.
func (s *Store) Close() error { return s.db.Close() }

// PutPatient adds or replaces a validated patient record in the session.
func (s *Store) PutPatient(rec *schema.PatientRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO patients (patient_id, name, dob, record, loaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (patient_id) DO UPDATE SET
			name = excluded.name,
			dob = excluded.dob,
			record = excluded.record,
			loaded_at = excluded.loaded_at`,
		rec.PatientID, rec.Demographics.Name, rec.Demographics.DOB,
		string(blob), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store patient %s: %w", rec.PatientID, err)
	}
	return nil
}

// Patient returns one patient from the session.
func (s *Store) Patient(patientID string) (*schema.PatientRecord, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT record FROM patients WHERE patient_id = ?`, patientID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("load patient %s: %w", patientID, err)
	}
	var rec schema.PatientRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("decode patient %s: %w", patientID, err)
	}
	return &rec, nil
}

// Patients lists the session's patients in load order.
func (s *Store) Patients() ([]PatientSummary, error) {
	rows, err := s.db.Query(
		`SELECT patient_id, name, dob, loaded_at FROM patients ORDER BY loaded_at, patient_id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []PatientSummary
	for rows.Next() {
		var p PatientSummary
		var loaded string
		if err := rows.Scan(&p.PatientID, &p.Name, &p.DOB, &loaded); err != nil {
			return nil, err
		}
		p.LoadedAt, _ = time.Parse(time.RFC3339, loaded)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LogRun records one extraction call against a session patient.
func (s *Store) LogRun(run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, patient_id, question, answer, confidence, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.PatientID, run.Question, run.Answer,
		run.Confidence, run.Error, run.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("log run %s: %w", run.RunID, err)
	}
	return nil
}

// Runs lists the recorded calls for one patient, oldest first.
func (s *Store) Runs(patientID string) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, patient_id, question, answer, confidence, error, created_at
		FROM runs WHERE patient_id = ? ORDER BY created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.RunID, &r.PatientID, &r.Question, &r.Answer,
			&r.Confidence, &r.Error, &created); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
