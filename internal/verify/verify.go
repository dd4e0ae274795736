// Package verify runs expected-behavior contracts against a deployed
// configuration and scores the observations.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/sandbox"
)

// Engine executes probe suites. It holds no state and performs no retries:
// retry policy belongs to the orchestrator.
type Engine struct{}

// NewEngine creates a verification engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Verify runs each contract assertion in declared order against the live
// sandbox and aggregates a verdict: PASS iff every assertion passed,
// INCONCLUSIVE if any probe timed out, FAIL otherwise.
func (e *Engine) Verify(ctx context.Context, sb sandbox.Sandbox, contract model.Contract) (model.VerificationReport, error) {
	report := model.VerificationReport{
		Assertions: make([]model.AssertionResult, 0, len(contract.Assertions)),
		MeasuredAt: time.Now().UTC(),
	}

	anyTimeout := false
	anyFailed := false
	for _, a := range contract.Assertions {
		res, err := e.runAssertion(ctx, sb, a, contract)
		if err != nil {
			return model.VerificationReport{}, err
		}
		if res.TimedOut {
			anyTimeout = true
		} else if !res.Passed {
			anyFailed = true
		}
		report.Assertions = append(report.Assertions, res)
		log.Debug().
			Str("assertion", a.Name).
			Str("observed", res.Observed).
			Bool("passed", res.Passed).
			Bool("timed_out", res.TimedOut).
			Msg("assertion probed")
	}

	switch {
	case anyTimeout:
		report.Verdict = model.VerdictInconclusive
	case anyFailed:
		report.Verdict = model.VerdictFail
	default:
		report.Verdict = model.VerdictPass
	}
	return report, nil
}

// runAssertion probes one assertion under its own timeout. A probe that
// cannot complete in time is recorded as timed out, not failed: "could not
// observe behavior" is distinct from "wrong behavior".
func (e *Engine) runAssertion(ctx context.Context, sb sandbox.Sandbox, a model.Assertion, contract model.Contract) (model.AssertionResult, error) {
	probeCtx := ctx
	if contract.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, contract.ProbeTimeout)
		defer cancel()
	}

	res := model.AssertionResult{Name: a.Name}
	var err error
	switch a.Kind {
	case model.AssertReachability:
		res.Expected = reachabilityWord(a.ExpectReachable)
		var observed bool
		observed, err = sb.ProbeReachability(probeCtx, a.Source, a.Dest)
		if err == nil {
			res.Observed = reachabilityWord(observed)
			res.Passed = observed == a.ExpectReachable
		}
	case model.AssertLoss:
		res.Expected = fmt.Sprintf("loss <= %.1f%%", a.MaxLossPercent)
		var observed float64
		observed, err = sb.ProbeLoss(probeCtx, a.Source, a.Dest, contract.Trials)
		if err == nil {
			res.Observed = fmt.Sprintf("%.1f%% loss", observed)
			res.Passed = observed <= a.MaxLossPercent
		}
	case model.AssertLatency:
		res.Expected = fmt.Sprintf("latency <= %s", a.MaxLatency)
		var observed time.Duration
		observed, err = sb.ProbeLatency(probeCtx, a.Source, a.Dest)
		if err == nil {
			res.Observed = fmt.Sprintf("%s latency", observed)
			res.Passed = observed <= a.MaxLatency
		}
	default:
		return res, fmt.Errorf("unknown assertion kind %q", a.Kind)
	}

	if err != nil {
		if ctx.Err() != nil {
			// External cancellation, not a probe timeout.
			return res, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			res.TimedOut = true
			res.Observed = "probe timed out"
			return res, nil
		}
		return res, fmt.Errorf("probe %q: %w", a.Name, err)
	}
	return res, nil
}

func reachabilityWord(reachable bool) string {
	if reachable {
		return "reachable"
	}
	return "unreachable"
}
