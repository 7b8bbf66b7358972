package model

// Verdict is the categorical judgement about a claim.
type Verdict string

const (
	VerdictTrue    Verdict = "true"
	VerdictFalse   Verdict = "false"
	VerdictUnclear Verdict = "unclear"
)

// Valid reports whether v is one of the three known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictTrue, VerdictFalse, VerdictUnclear:
		return true
	}
	return false
}

// VerdictForAccuracy maps an accuracy percentage to its nominal verdict:
// 70 and above is true, 40 to 69 is unclear, below 40 is false.
func VerdictForAccuracy(accuracy int) Verdict {
	switch {
	case accuracy >= 70:
		return VerdictTrue
	case accuracy >= 40:
		return VerdictUnclear
	default:
		return VerdictFalse
	}
}

// ContentType is the declared kind of submitted content.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentLink ContentType = "link"
	ContentFile ContentType = "file"
)

// MaxClaimLength bounds the claim field, in characters.
const MaxClaimLength = 150

// Evidence is a single cited source.
type Evidence struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// VerificationResult is the fact-check verdict returned to the browser.
// It only lives for the duration of one request.
type VerificationResult struct {
	Claim        string     `json:"claim"`
	Accuracy     int        `json:"accuracy"`
	Verdict      Verdict    `json:"verdict"`
	Evidence     []Evidence `json:"evidence"`
	Explanation  string     `json:"explanation"`
	AwarenessTip string     `json:"awarenessTip"`
}

// VerifyRequest is the inbound body of POST /v1/verify.
type VerifyRequest struct {
	Content string      `json:"content"`
	Type    ContentType `json:"type"`
}

// ErrorResponse is the error envelope for every non-200 response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
