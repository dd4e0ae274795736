// Package feedback turns a non-PASS verification report into structured,
// LLM-consumable feedback.
package feedback

import (
	"fmt"

	"github.com/intentlab/vdip/internal/model"
)

// Synthesize diffs expected vs. observed behavior into discrepancies. It is
// called only for FAIL or INCONCLUSIVE reports and is deterministic: the
// same report and snapshot always yield identical feedback. The snapshot is
// carried opaquely for the audit trail; prompts only ever see the
// discrepancy explanations.
func Synthesize(report model.VerificationReport, snapshot string) model.Feedback {
	fb := model.Feedback{
		DerivedFromAttempt: report.AttemptNumber,
		RawStateSnapshot:   snapshot,
	}
	for _, a := range report.Assertions {
		switch {
		case a.TimedOut:
			fb.Discrepancies = append(fb.Discrepancies, model.Discrepancy{
				Assertion:   a.Name,
				Explanation: fmt.Sprintf("expected %s, but the probe could not observe behavior before its timeout", a.Expected),
			})
		case !a.Passed:
			fb.Discrepancies = append(fb.Discrepancies, model.Discrepancy{
				Assertion:   a.Name,
				Explanation: fmt.Sprintf("expected %s, observed %s", a.Expected, a.Observed),
			})
		}
	}
	return fb
}

// ForTranslationFailure is the fixed feedback used after a translation
// failure: there is no report to diff, only a syntax problem to fix.
func ForTranslationFailure(attemptNumber int, detail string) model.Feedback {
	return model.Feedback{
		DerivedFromAttempt: attemptNumber,
		Discrepancies: []model.Discrepancy{
			{
				Assertion:   "configuration syntax",
				Explanation: fmt.Sprintf("the previous output was not a syntactically valid configuration (%s); fix the syntax and output only the JSON object", detail),
			},
		},
	}
}
