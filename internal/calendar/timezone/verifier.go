package timezone

import (
	"fmt"
	"strings"
)

// Signal is one raw timezone reading extracted from a distinct page location
// by the page-retrieval collaborator. Method names come from upstream
// ("settings_script", "footer_label", "js_variable", ...) and are only used
// for diagnostics; priority is positional.
type Signal struct {
	Method string `json:"method"`
	Value  string `json:"value"`
}

// VerificationResult is the session-wide gate decision. It is never
// persisted; the verified Timezone ends up on each Event as an audit field.
type VerificationResult struct {
	OK       bool
	Timezone string
	Reasons  []string
}

// Verifier decides whether a session's page reported its times in an allowed
// timezone. It is pure: signals in, decision out, no I/O.
type Verifier struct {
	policy Policy
}

// NewVerifier builds a verifier for one deployment policy.
func NewVerifier(policy Policy) *Verifier {
	return &Verifier{policy: policy}
}

// Verify applies the allow-list to the session's signals.
//
// Signals are ordered by detection priority. The first non-empty signal is
// authoritative, but every later non-empty signal must agree with it: a
// disagreement fails the whole session rather than picking a winner, because
// a page showing two different timezones cannot be trusted for any record.
func (v *Verifier) Verify(signals []Signal) VerificationResult {
	var (
		authoritative string
		identity      string
		reasons       []string
	)

	for _, sig := range signals {
		value := strings.TrimSpace(sig.Value)
		if value == "" {
			continue
		}

		resolved := v.policy.resolve(value)
		if resolved == "" {
			return VerificationResult{
				OK: false,
				Reasons: append(reasons, fmt.Sprintf(
					"method %s reported disallowed timezone %q", sig.Method, value)),
			}
		}

		if authoritative == "" {
			authoritative = sig.Method
			identity = resolved
			reasons = append(reasons, fmt.Sprintf(
				"method %s reported %q (resolved %s)", sig.Method, value, resolved))
			continue
		}

		if resolved != identity {
			return VerificationResult{
				OK: false,
				Reasons: append(reasons, fmt.Sprintf(
					"method %s reported %q (resolved %s), disagreeing with method %s (%s)",
					sig.Method, value, resolved, authoritative, identity)),
			}
		}
		reasons = append(reasons, fmt.Sprintf("method %s agreed (%s)", sig.Method, resolved))
	}

	if identity == "" {
		return VerificationResult{
			OK:      false,
			Reasons: []string{"no detection method reported a timezone"},
		}
	}

	return VerificationResult{OK: true, Timezone: identity, Reasons: reasons}
}
