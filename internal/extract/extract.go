// Package extract turns the model's raw completion text into a
// VerificationResult: it locates the JSON payload, parses it, substitutes a
// deterministic fallback when parsing fails, and validates the parsed object
// against the result schema.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"infosage/internal/model"
	"infosage/internal/textutil"
)

// fencePattern matches the first triple-backtick block, with an optional
// json language tag, and captures its interior.
var fencePattern = regexp.MustCompile("(?s)```(?i:json)?[ \t]*\r?\n?(.*?)\r?\n?[ \t]*```")

// ErrNotObject is returned when the candidate is valid JSON but not an object.
var ErrNotObject = errors.New("model reply is not a JSON object")

// Candidate returns the interior of the first fenced block in raw, or raw
// itself when there is no fence.
func Candidate(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// Parse extracts and decodes the JSON object in raw. The object is returned
// exactly as decoded; numbers are kept as json.Number so nothing is rounded
// or reformatted. No schema checks happen here.
func Parse(raw string) (map[string]any, error) {
	candidate := strings.TrimSpace(Candidate(raw))

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

const (
	fallbackSource      = "Verification System"
	fallbackURL         = "https://www.snopes.com/"
	fallbackSnippet     = "Unable to automatically verify this claim. Manual fact-checking recommended."
	fallbackExplanation = "The verification system encountered difficulty analyzing this content. Please consult trusted fact-checking sources for manual verification."
	fallbackTip         = "When in doubt, cross-reference claims with multiple authoritative sources like WHO, Reuters, or government agencies."
	fallbackAccuracy    = 50
)

// Fallback is the deterministic result used when the model's output
// cannot be trusted. The claim is the first 150 characters of the
// submitted content.
func Fallback(content string) model.VerificationResult {
	return model.VerificationResult{
		Claim:    textutil.Truncate(content, model.MaxClaimLength),
		Accuracy: fallbackAccuracy,
		Verdict:  model.VerdictUnclear,
		Evidence: []model.Evidence{{
			Source:  fallbackSource,
			URL:     fallbackURL,
			Snippet: fallbackSnippet,
		}},
		Explanation:  fallbackExplanation,
		AwarenessTip: fallbackTip,
	}
}
