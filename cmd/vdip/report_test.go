package main

import (
	"strings"
	"testing"
	"time"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/registry"
)

func TestReportMarkdown(t *testing.T) {
	t.Parallel()

	accepted := 2
	sess := model.Session{
		ID: "sess-1",
		Intent: model.Intent{
			Text:        "Block traffic from h1 to h2",
			TopologyRef: "pair",
		},
		State:           model.SessionAccepted,
		MaxAttempts:     3,
		AcceptedAttempt: &accepted,
		Attempts: []model.Attempt{
			{
				Number: 1,
				Config: &model.CandidateConfig{Format: model.ConfigFormatSDNRules, Body: `{"rules":[]}`},
				Report: &model.VerificationReport{
					AttemptNumber: 1,
					Verdict:       model.VerdictFail,
					Assertions: []model.AssertionResult{
						{Name: "h1->h2 unreachable", Expected: "unreachable", Observed: "reachable"},
					},
				},
			},
			{
				Number: 2,
				Config: &model.CandidateConfig{Format: model.ConfigFormatSDNRules, Body: `{"rules":[{"action":"drop"}]}`},
				FeedbackUsed: &model.Feedback{
					DerivedFromAttempt: 1,
					Discrepancies: []model.Discrepancy{
						{Assertion: "h1->h2 unreachable", Explanation: "expected unreachable, observed reachable"},
					},
				},
				Report: &model.VerificationReport{
					AttemptNumber: 2,
					Verdict:       model.VerdictPass,
					Assertions: []model.AssertionResult{
						{Name: "h1->h2 unreachable", Expected: "unreachable", Observed: "unreachable", Passed: true},
					},
				},
			},
		},
	}
	events := []registry.Event{
		{Seq: 1, At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Type: "session_created", Message: "session created"},
	}

	md := reportMarkdown(sess, events)

	for _, want := range []string{
		"# Session sess-1",
		"**State:** ACCEPTED",
		"**Accepted attempt:** 2",
		"## Attempt 1",
		"## Attempt 2",
		"Refined from attempt 1",
		"expected unreachable, observed reachable",
		"Verdict: **PASS**",
		"## Timeline",
		"session_created",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("report markdown missing %q:\n%s", want, md)
		}
	}
}

func TestReportMarkdown_TranslationFailure(t *testing.T) {
	t.Parallel()

	sess := model.Session{
		ID:          "sess-2",
		State:       model.SessionRejected,
		MaxAttempts: 1,
		Attempts: []model.Attempt{
			{Number: 1, FailureReason: "translation failed (SCHEMA_INVALID): missing rules"},
		},
	}

	md := reportMarkdown(sess, nil)
	if !strings.Contains(md, "Translation failed: translation failed (SCHEMA_INVALID): missing rules") {
		t.Fatalf("report markdown missing translation failure:\n%s", md)
	}
	if strings.Contains(md, "Verdict:") {
		t.Fatalf("translation-failed attempt should carry no verdict:\n%s", md)
	}
}
