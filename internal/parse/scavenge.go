package parse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Field-level patterns for the last-resort strategy. Keys may appear quoted
// or bare, separated by ':' or '=', values quoted or not.
var (
	answerFieldRe     = regexp.MustCompile(`(?i)"?answer"?\s*[:=]\s*"?([A-Za-z]+)"?`)
	confidenceFieldRe = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*"?([0-9]*\.?[0-9]+)"?`)
	reasonFieldRe     = regexp.MustCompile(`(?i)"?reason"?\s*[:=]\s*"([^"\n]+)"`)
)

// scavenge pulls individual named fields straight out of the text with no
// JSON parsing at all. It runs only after every structural strategy has
// failed; evidence and the extracted-data substructures are unrecoverable at
// this point and default to empty. At least one field pattern must match:
// free text with no recognizable fields stays a failure rather than becoming
// a fabricated "unknown" success.
func scavenge(text string) (*Result, error) {
	res := &Result{Answer: "unknown"}

	matched := false
	if m := answerFieldRe.FindStringSubmatch(text); m != nil {
		res.Answer = NormalizeAnswer(m[1])
		matched = true
	}
	if m := reasonFieldRe.FindStringSubmatch(text); m != nil {
		res.Reason = strings.TrimSpace(m[1])
		matched = true
	}
	if m := confidenceFieldRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil && f >= 0 && f <= 1 {
			res.Confidence = f
		}
		matched = true
	}
	if !matched {
		return nil, errors.New("no recognizable fields in text")
	}
	applyDefaults(res)
	return res, nil
}
