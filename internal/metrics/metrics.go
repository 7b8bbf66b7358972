package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Prometheus-style metrics for the verification API, held in memory.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	verificationsTotal = make(map[verifyKey]int64)
	upstreamErrors     = make(map[upstreamKey]int64)
	fallbacksTotal     = make(map[string]int64)
	verdictCorrections = make(map[correctionKey]int64)
	previewsTotal      = make(map[string]int64)
	rateLimitedTotal   int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type verifyKey struct {
	Provider string
	Model    string
	Outcome  string
}

type upstreamKey struct {
	Provider string
	Status   int
}

type correctionKey struct {
	From string
	To   string
}

// Verification outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordVerification counts a finished verification by provider, model
// and outcome.
func RecordVerification(provider, model, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	verificationsTotal[verifyKey{Provider: provider, Model: model, Outcome: outcome}]++
}

// RecordUpstreamStatus counts non-success statuses returned by the LLM
// provider.
func RecordUpstreamStatus(provider string, status int) {
	mu.Lock()
	defer mu.Unlock()
	upstreamErrors[upstreamKey{Provider: provider, Status: status}]++
}

// RecordFallback counts substitutions of the fallback result, keyed by why
// the model output was discarded ("parse" or "schema").
func RecordFallback(reason string) {
	mu.Lock()
	defer mu.Unlock()
	fallbacksTotal[reason]++
}

// RecordVerdictCorrection counts verdicts rewritten to match the accuracy band.
func RecordVerdictCorrection(from, to string) {
	mu.Lock()
	defer mu.Unlock()
	verdictCorrections[correctionKey{From: from, To: to}]++
}

// RecordPreview counts link preview attempts by outcome
// ("ok", "blocked", "failed").
func RecordPreview(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	previewsTotal[outcome]++
}

// RecordRateLimited counts requests rejected by the local limiter.
func RecordRateLimited() {
	mu.Lock()
	defer mu.Unlock()
	rateLimitedTotal++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP infosage_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE infosage_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "infosage_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP infosage_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE infosage_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP infosage_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE infosage_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "infosage_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "infosage_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP infosage_verifications_total Verifications by provider, model and outcome\n")
	b.WriteString("# TYPE infosage_verifications_total counter\n")

	var vKeys []verifyKey
	for k := range verificationsTotal {
		vKeys = append(vKeys, k)
	}
	sort.Slice(vKeys, func(i, j int) bool {
		if vKeys[i].Provider != vKeys[j].Provider {
			return vKeys[i].Provider < vKeys[j].Provider
		}
		if vKeys[i].Model != vKeys[j].Model {
			return vKeys[i].Model < vKeys[j].Model
		}
		return vKeys[i].Outcome < vKeys[j].Outcome
	})
	for _, k := range vKeys {
		fmt.Fprintf(&b, "infosage_verifications_total{provider=\"%s\",model=\"%s\",outcome=\"%s\"} %d\n",
			k.Provider, k.Model, k.Outcome, verificationsTotal[k])
	}

	b.WriteString("# HELP infosage_upstream_errors_total Non-success statuses from the LLM provider\n")
	b.WriteString("# TYPE infosage_upstream_errors_total counter\n")

	var uKeys []upstreamKey
	for k := range upstreamErrors {
		uKeys = append(uKeys, k)
	}
	sort.Slice(uKeys, func(i, j int) bool {
		if uKeys[i].Provider != uKeys[j].Provider {
			return uKeys[i].Provider < uKeys[j].Provider
		}
		return uKeys[i].Status < uKeys[j].Status
	})
	for _, k := range uKeys {
		fmt.Fprintf(&b, "infosage_upstream_errors_total{provider=\"%s\",status=\"%d\"} %d\n",
			k.Provider, k.Status, upstreamErrors[k])
	}

	b.WriteString("# HELP infosage_fallbacks_total Fallback results served, by reason\n")
	b.WriteString("# TYPE infosage_fallbacks_total counter\n")
	writeStringCounter(&b, "infosage_fallbacks_total", "reason", fallbacksTotal)

	b.WriteString("# HELP infosage_verdict_corrections_total Verdicts rewritten to match accuracy\n")
	b.WriteString("# TYPE infosage_verdict_corrections_total counter\n")

	var cKeys []correctionKey
	for k := range verdictCorrections {
		cKeys = append(cKeys, k)
	}
	sort.Slice(cKeys, func(i, j int) bool {
		if cKeys[i].From != cKeys[j].From {
			return cKeys[i].From < cKeys[j].From
		}
		return cKeys[i].To < cKeys[j].To
	})
	for _, k := range cKeys {
		fmt.Fprintf(&b, "infosage_verdict_corrections_total{from=\"%s\",to=\"%s\"} %d\n",
			k.From, k.To, verdictCorrections[k])
	}

	b.WriteString("# HELP infosage_link_previews_total Link preview fetches by outcome\n")
	b.WriteString("# TYPE infosage_link_previews_total counter\n")
	writeStringCounter(&b, "infosage_link_previews_total", "outcome", previewsTotal)

	b.WriteString("# HELP infosage_rate_limited_total Requests rejected by the rate limiter\n")
	b.WriteString("# TYPE infosage_rate_limited_total counter\n")
	fmt.Fprintf(&b, "infosage_rate_limited_total %d\n", rateLimitedTotal)

	return b.String()
}

func writeStringCounter(b *strings.Builder, name, label string, m map[string]int64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, k, m[k])
	}
}
