// Package model defines the core data model shared across the pipeline.
package model

import (
	"time"
)

// Intent is a user's natural-language network request plus a topology
// reference. Immutable once created; one Intent owns exactly one Session.
type Intent struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	TopologyRef string    `json:"topology_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// CandidateConfig is one generated, not-yet-trusted set of network rules.
// The body is opaque to the pipeline; Format declares how the sandbox
// should interpret it.
type CandidateConfig struct {
	Format string `json:"format"`
	Body   string `json:"body"`
}

// SessionState enumerates the lifecycle states of a Session.
type SessionState string

const (
	SessionRunning  SessionState = "RUNNING"
	SessionAccepted SessionState = "ACCEPTED"
	SessionRejected SessionState = "REJECTED"
	SessionAborted  SessionState = "ABORTED"
)

// Terminal reports whether the state has no outgoing transitions.
func (s SessionState) Terminal() bool {
	return s == SessionAccepted || s == SessionRejected || s == SessionAborted
}

// Verdict is the aggregate outcome of a verification run.
type Verdict string

const (
	VerdictPass         Verdict = "PASS"
	VerdictFail         Verdict = "FAIL"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
)

// AssertionKind selects the probe a contract assertion runs.
type AssertionKind string

const (
	AssertReachability AssertionKind = "reachability"
	AssertLoss         AssertionKind = "loss"
	AssertLatency      AssertionKind = "latency"
)

// Assertion is one expected-behavior statement derived from an intent.
// Which fields are meaningful depends on Kind.
type Assertion struct {
	Name            string        `json:"name"`
	Kind            AssertionKind `json:"kind"`
	Source          string        `json:"source"`
	Dest            string        `json:"dest"`
	ExpectReachable bool          `json:"expect_reachable,omitempty"`
	MaxLossPercent  float64       `json:"max_loss_percent,omitempty"`
	MaxLatency      time.Duration `json:"max_latency,omitempty"`
}

// Contract is the ordered expected-behavior contract for an intent.
// Assertion order is declared once and preserved through every report.
type Contract struct {
	Assertions   []Assertion   `json:"assertions"`
	Trials       int           `json:"trials"`
	ProbeTimeout time.Duration `json:"probe_timeout"`
}

// AssertionResult records one assertion's observed outcome.
type AssertionResult struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
	Passed   bool   `json:"passed"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// VerificationReport is the structured outcome of running a contract
// against a deployed configuration.
type VerificationReport struct {
	AttemptNumber int               `json:"attempt_number"`
	Assertions    []AssertionResult `json:"assertions"`
	Verdict       Verdict           `json:"verdict"`
	MeasuredAt    time.Time         `json:"measured_at"`
}

// Discrepancy pairs a failed assertion with an explanation the LLM can act on.
type Discrepancy struct {
	Assertion   string `json:"assertion"`
	Explanation string `json:"explanation"`
}

// Feedback is the structured diagnostic fed into the next attempt.
// Produced only from FAIL or INCONCLUSIVE reports.
type Feedback struct {
	DerivedFromAttempt int           `json:"derived_from_attempt"`
	Discrepancies      []Discrepancy `json:"discrepancies"`
	RawStateSnapshot   string        `json:"raw_state_snapshot,omitempty"`
}

// Attempt is one generate-deploy-verify cycle within a Session. Attempts
// are append-only: the full sequence is the audit trail. A translation
// failure leaves Config and Report nil and sets FailureReason.
type Attempt struct {
	SessionID     string              `json:"session_id"`
	Number        int                 `json:"number"`
	Config        *CandidateConfig    `json:"config,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
	FeedbackUsed  *Feedback           `json:"feedback_used,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Report        *VerificationReport `json:"report,omitempty"`
}

// Session is the bounded retry loop for a single Intent.
type Session struct {
	ID              string       `json:"id"`
	Intent          Intent       `json:"intent"`
	State           SessionState `json:"state"`
	Attempts        []Attempt    `json:"attempts"`
	MaxAttempts     int          `json:"max_attempts"`
	AcceptedAttempt *int         `json:"accepted_attempt,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// AcceptedConfig returns the validated configuration for an ACCEPTED
// session, or nil.
func (s *Session) AcceptedConfig() *CandidateConfig {
	if s.State != SessionAccepted || s.AcceptedAttempt == nil {
		return nil
	}
	for i := range s.Attempts {
		if s.Attempts[i].Number == *s.AcceptedAttempt {
			return s.Attempts[i].Config
		}
	}
	return nil
}

// ConfigFormatSDNRules is the declarative rule format the reference sandbox
// accepts: a JSON rule list matching on source/destination address.
const ConfigFormatSDNRules = "sdn-rules/v1"
