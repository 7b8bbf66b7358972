package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"infosage/internal/model"
	"infosage/internal/textutil"
)

// Policy decides what happens when the verdict disagrees with the
// accuracy band.
type Policy string

const (
	PolicyCorrect     Policy = "correct"
	PolicyReject      Policy = "reject"
	PolicyPassthrough Policy = "passthrough"
)

// ParsePolicy parses a policy name; the empty string means PolicyCorrect.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyCorrect, nil
	case PolicyCorrect, PolicyReject, PolicyPassthrough:
		return p, nil
	default:
		return "", fmt.Errorf("unknown verdict policy %q", s)
	}
}

// SchemaError describes the first schema violation found.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validated is a schema-checked result plus what the validator changed.
type Validated struct {
	Result model.VerificationResult
	// Corrected is set when the verdict was rewritten from the accuracy band.
	Corrected bool
	// ModelVerdict is the verdict as the model returned it.
	ModelVerdict model.Verdict
	// Truncated is set when the claim was cut to MaxClaimLength.
	Truncated bool
}

// Validate checks obj against the VerificationResult schema and converts it.
// Every field must be present with the right JSON type, verdict must be one
// of the enumeration, and accuracy must be a number in [0,100]; fractional
// accuracies are rounded. Evidence length is not enforced.
func Validate(obj map[string]any, policy Policy) (Validated, error) {
	var out Validated

	claim, err := requireString(obj, "claim")
	if err != nil {
		return out, err
	}
	if textutil.Truncate(claim, model.MaxClaimLength) != claim {
		claim = textutil.Truncate(claim, model.MaxClaimLength)
		out.Truncated = true
	}

	accuracy, err := requireAccuracy(obj)
	if err != nil {
		return out, err
	}

	verdictStr, err := requireString(obj, "verdict")
	if err != nil {
		return out, err
	}
	verdict := model.Verdict(verdictStr)
	if !verdict.Valid() {
		return out, &SchemaError{Field: "verdict", Reason: fmt.Sprintf("%q is not one of true, false, unclear", verdictStr)}
	}
	out.ModelVerdict = verdict

	evidence, err := requireEvidence(obj)
	if err != nil {
		return out, err
	}

	explanation, err := requireString(obj, "explanation")
	if err != nil {
		return out, err
	}
	tip, err := requireString(obj, "awarenessTip")
	if err != nil {
		return out, err
	}

	if expected := model.VerdictForAccuracy(accuracy); expected != verdict {
		switch policy {
		case PolicyReject:
			return out, &SchemaError{Field: "verdict", Reason: fmt.Sprintf("%q contradicts accuracy %d", verdict, accuracy)}
		case PolicyPassthrough:
		default:
			verdict = expected
			out.Corrected = true
		}
	}

	out.Result = model.VerificationResult{
		Claim:        claim,
		Accuracy:     accuracy,
		Verdict:      verdict,
		Evidence:     evidence,
		Explanation:  explanation,
		AwarenessTip: tip,
	}
	return out, nil
}

func requireString(obj map[string]any, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", &SchemaError{Field: field, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &SchemaError{Field: field, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func requireAccuracy(obj map[string]any) (int, error) {
	v, ok := obj["accuracy"]
	if !ok {
		return 0, &SchemaError{Field: "accuracy", Reason: "missing"}
	}

	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, &SchemaError{Field: "accuracy", Reason: err.Error()}
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return 0, &SchemaError{Field: "accuracy", Reason: fmt.Sprintf("expected number, got %T", v)}
	}

	if math.IsNaN(f) || f < 0 || f > 100 {
		return 0, &SchemaError{Field: "accuracy", Reason: fmt.Sprintf("%v is outside [0,100]", f)}
	}
	return int(math.Round(f)), nil
}

func requireEvidence(obj map[string]any) ([]model.Evidence, error) {
	v, ok := obj["evidence"]
	if !ok {
		return nil, &SchemaError{Field: "evidence", Reason: "missing"}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaError{Field: "evidence", Reason: fmt.Sprintf("expected array, got %T", v)}
	}

	out := make([]model.Evidence, 0, len(items))
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, &SchemaError{Field: fmt.Sprintf("evidence[%d]", i), Reason: "expected object"}
		}
		source, err := requireString(item, "source")
		if err != nil {
			return nil, &SchemaError{Field: fmt.Sprintf("evidence[%d].source", i), Reason: err.(*SchemaError).Reason}
		}
		url, err := requireString(item, "url")
		if err != nil {
			return nil, &SchemaError{Field: fmt.Sprintf("evidence[%d].url", i), Reason: err.(*SchemaError).Reason}
		}
		snippet := ""
		if s, ok := item["snippet"]; ok {
			if snippet, ok = s.(string); !ok {
				return nil, &SchemaError{Field: fmt.Sprintf("evidence[%d].snippet", i), Reason: "expected string"}
			}
		}
		out = append(out, model.Evidence{Source: source, URL: url, Snippet: snippet})
	}
	return out, nil
}
