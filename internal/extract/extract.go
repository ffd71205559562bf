// Package extract composes the pipeline: build the prompt, invoke the model
// with bounded retries, parse the response, and always hand back a fully
// formed ExtractionResult, success or typed failure, never a panic or a
// half-populated record.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ssomangili/medextract/internal/parse"
	"github.com/ssomangili/medextract/internal/prompt"
	"github.com/ssomangili/medextract/internal/provider"
	"github.com/ssomangili/medextract/internal/schema"
)

// DefaultAttempts is how many times an invocation is tried before the run is
// declared failed.
const DefaultAttempts = 3

// noResponse is the raw_response placeholder when invocation never produced
// any text.
const noResponse = "(no response)"

// state tracks one run through the invocation machine. Purely diagnostic;
// transitions show up in logs, not in the API.
type state string

const (
	stateBuilding  state = "building"
	stateInvoking  state = "invoking"
	stateParsing   state = "parsing"
	stateSucceeded state = "succeeded"
	stateFailed    state = "failed"
)

// Extractor runs analyses against one configured model. It holds no per-call
// state; a single Extractor may be shared across sequential calls.
type Extractor struct {
	model     provider.Model
	builder   prompt.Builder
	attempts  int
	retryWait time.Duration
	logger    zerolog.Logger
}

// Option tweaks an Extractor.
type Option func(*Extractor)

// WithAttempts sets the invocation retry bound (minimum 1).
func WithAttempts(n int) Option {
	return func(e *Extractor) {
		if n >= 1 {
			e.attempts = n
		}
	}
}

// WithRetryWait sets the pause between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(e *Extractor) { e.retryWait = d }
}

// WithLogger routes run logging.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithClock pins the prompt builder's reference time. Tests use it to make
// the derived age reproducible.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.builder.Now = now }
}

// New builds an Extractor over the given model.
func New(model provider.Model, opts ...Option) *Extractor {
	e := &Extractor{
		model:     model,
		attempts:  DefaultAttempts,
		retryWait: 500 * time.Millisecond,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract answers one question about one validated record. Every path
// returns a result: failures carry Error plus the last raw response seen.
func (e *Extractor) Extract(ctx context.Context, rec *schema.PatientRecord, question string) *schema.ExtractionResult {
	runID := uuid.NewString()
	log := e.logger.With().
		Str("run_id", runID).
		Str("patient_id", rec.PatientID).
		Logger()

	log.Debug().Str("state", string(stateBuilding)).Msg("building prompt")
	promptText, err := e.builder.Build(rec, question)
	if err != nil {
		log.Error().Str("state", string(stateFailed)).Err(err).Msg("prompt construction failed")
		return schema.FailedResult(rec, question, "prompt construction error: "+err.Error(), noResponse)
	}

	var (
		lastRaw string
		parsed  *parse.Result
		attempt int
	)

	invoke := func() error {
		attempt++
		log.Debug().Str("state", string(stateInvoking)).Int("attempt", attempt).Msg("invoking model")

		raw, err := e.model.Invoke(ctx, promptText)
		if err != nil {
			var credErr *provider.CredentialError
			if errors.As(err, &credErr) {
				// Retrying without a credential cannot succeed.
				return backoff.Permanent(err)
			}
			log.Warn().Int("attempt", attempt).Err(err).Msg("invocation failed")
			return err
		}
		lastRaw = raw

		log.Debug().Str("state", string(stateParsing)).Int("attempt", attempt).Msg("parsing response")
		res, perr := parse.Parse(raw)
		if perr != nil {
			// A parse failure on a non-final attempt is just another
			// retryable invocation failure.
			log.Warn().Int("attempt", attempt).Err(perr).Msg("parse failed")
			return perr
		}
		parsed = res
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryWait), uint64(e.attempts-1)),
		ctx,
	)
	if err := backoff.Retry(invoke, bo); err != nil {
		log.Error().Str("state", string(stateFailed)).Int("attempts", attempt).Err(err).Msg("extraction failed")
		return e.failed(rec, question, err, lastRaw)
	}

	log.Info().
		Str("state", string(stateSucceeded)).
		Int("attempts", attempt).
		Str("answer", parsed.Answer).
		Float64("confidence", parsed.Confidence).
		Msg("extraction succeeded")
	return e.succeeded(rec, question, parsed)
}

func (e *Extractor) succeeded(rec *schema.PatientRecord, question string, res *parse.Result) *schema.ExtractionResult {
	condition := res.Condition
	if condition == "" {
		condition = question
	}
	return &schema.ExtractionResult{
		PatientInfo: schema.PatientInfo{
			ID:   rec.PatientID,
			Name: rec.Demographics.Name,
			DOB:  rec.Demographics.DOB,
		},
		Condition:    condition,
		Answer:       res.Answer,
		Reason:       res.Reason,
		Evidence:     res.Evidence,
		Confidence:   res.Confidence,
		Treatments:   res.Treatments,
		Tests:        res.Tests,
		Symptoms:     res.Symptoms,
		HasCondition: res.HasCondition,
		WasTreated:   res.WasTreated,
	}
}

func (e *Extractor) failed(rec *schema.PatientRecord, question string, err error, lastRaw string) *schema.ExtractionResult {
	raw := lastRaw
	if raw == "" {
		raw = noResponse
	}

	var msg string
	var credErr *provider.CredentialError
	var parseFail *parse.Failure
	switch {
	case errors.As(err, &credErr):
		msg = "missing credential: " + credErr.Error()
	case errors.As(err, &parseFail):
		msg = "could not parse model response: " + parseFail.Err.Error()
		raw = parseFail.Raw
	default:
		msg = "model invocation failed: " + err.Error()
	}
	return schema.FailedResult(rec, question, msg, raw)
}
