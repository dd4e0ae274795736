// Package pipeline drives the bounded generate-deploy-verify-feedback loop
// for each intent and owns session lifecycle.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intentlab/vdip/internal/feedback"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/registry"
	"github.com/intentlab/vdip/internal/sandbox"
	"github.com/intentlab/vdip/internal/topology"
	"github.com/intentlab/vdip/internal/translate"
	"github.com/intentlab/vdip/internal/verify"
)

// Orchestrator runs one session's attempt loop: strictly sequential
// attempts, each depending on the feedback of the previous one.
type Orchestrator struct {
	translator *translate.Engine
	verifier   *verify.Engine
	store      *registry.Store
}

// NewOrchestrator wires the loop's collaborators.
func NewOrchestrator(translator *translate.Engine, verifier *verify.Engine, store *registry.Store) *Orchestrator {
	return &Orchestrator{translator: translator, verifier: verifier, store: store}
}

// RunSession drives the session to a terminal state. The sandbox handle is
// held exclusively for the whole session and released on every exit path.
// Cancellation of ctx is observed at suspension-point boundaries and ends
// the session as ABORTED after the sandbox has been reset and released.
func (o *Orchestrator) RunSession(ctx context.Context, sess model.Session, topo topology.Topology, contract model.Contract, handle *sandbox.Handle) (err error) {
	startedAt := time.Now()
	finalState := model.SessionState("")
	defer func() {
		// Reset before release so the slot's next checkout never races a
		// dirty instance, then record the terminal state.
		_ = handle.Reset(context.WithoutCancel(ctx))
		handle.Release()
		event := log.Info().
			Str("session_id", sess.ID).
			Str("state", string(finalState)).
			Dur("duration", time.Since(startedAt))
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("session finished")
	}()

	var lastFeedback *model.Feedback
	for attempt := 1; attempt <= sess.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			finalState = model.SessionAborted
			return o.abort(ctx, sess.ID)
		}

		att := model.Attempt{
			SessionID:    sess.ID,
			Number:       attempt,
			GeneratedAt:  time.Now().UTC(),
			FeedbackUsed: lastFeedback,
		}

		cfg, terr := o.translator.Translate(ctx, sess.Intent, topo, lastFeedback)
		switch {
		case terr == nil:
			att.Config = &cfg
			report, verr := o.deployAndVerify(ctx, handle, cfg, contract, attempt)
			if verr != nil {
				if ctx.Err() != nil {
					finalState = model.SessionAborted
					return o.abort(ctx, sess.ID)
				}
				return fmt.Errorf("attempt %d: %w", attempt, verr)
			}
			att.Report = report
			if report.Verdict != model.VerdictPass {
				fb := feedback.Synthesize(*report, handle.Snapshot())
				lastFeedback = &fb
			}
		case ctx.Err() != nil:
			finalState = model.SessionAborted
			return o.abort(ctx, sess.ID)
		default:
			var tf *model.TranslationFailure
			if !errors.As(terr, &tf) {
				return fmt.Errorf("attempt %d: translate: %w", attempt, terr)
			}
			// A terminal translation failure consumes the attempt but skips
			// deploy and verification entirely.
			att.FailureReason = tf.Error()
			fb := feedback.ForTranslationFailure(attempt, tf.Detail)
			lastFeedback = &fb
		}

		if err := o.store.AppendAttempt(ctx, att, attemptEvents(att)); err != nil {
			if ctx.Err() != nil {
				finalState = model.SessionAborted
				return o.abort(ctx, sess.ID)
			}
			return fmt.Errorf("record attempt %d: %w", attempt, err)
		}
		log.Info().
			Str("session_id", sess.ID).
			Int("attempt", attempt).
			Str("outcome", attemptOutcome(att)).
			Msg("attempt recorded")

		if att.Report != nil && att.Report.Verdict == model.VerdictPass {
			accepted := attempt
			if err := o.store.CloseSession(ctx, sess.ID, model.SessionAccepted, &accepted); err != nil {
				return fmt.Errorf("accept session: %w", err)
			}
			finalState = model.SessionAccepted
			return nil
		}
	}

	if err := o.store.CloseSession(ctx, sess.ID, model.SessionRejected, nil); err != nil {
		return fmt.Errorf("reject session: %w", err)
	}
	finalState = model.SessionRejected
	return nil
}

// deployAndVerify runs reset, deploy, verify for one attempt. An emulator
// rejection becomes a synthetic single-assertion FAIL report instead of a
// probe run.
func (o *Orchestrator) deployAndVerify(ctx context.Context, handle *sandbox.Handle, cfg model.CandidateConfig, contract model.Contract, attempt int) (*model.VerificationReport, error) {
	if err := handle.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset sandbox: %w", err)
	}
	if err := handle.Deploy(ctx, cfg); err != nil {
		var rejected *model.DeployRejected
		if errors.As(err, &rejected) {
			return deployRejectedReport(attempt, rejected.Detail), nil
		}
		return nil, fmt.Errorf("deploy: %w", err)
	}
	report, err := o.verifier.Verify(ctx, handle, contract)
	if err != nil {
		return nil, err
	}
	report.AttemptNumber = attempt
	return &report, nil
}

// abort records the ABORTED verdict. Registry writes use a detached context
// because the session context is already canceled.
func (o *Orchestrator) abort(ctx context.Context, sessionID string) error {
	closeCtx := context.WithoutCancel(ctx)
	if err := o.store.CloseSession(closeCtx, sessionID, model.SessionAborted, nil); err != nil {
		if errors.Is(err, model.ErrSessionClosed) {
			return nil
		}
		return fmt.Errorf("abort session: %w", err)
	}
	return model.ErrSessionAborted
}

func deployRejectedReport(attempt int, detail string) *model.VerificationReport {
	return &model.VerificationReport{
		AttemptNumber: attempt,
		Assertions: []model.AssertionResult{{
			Name:     "deployability",
			Expected: "configuration accepted by the emulator",
			Observed: detail,
			Passed:   false,
		}},
		Verdict:    model.VerdictFail,
		MeasuredAt: time.Now().UTC(),
	}
}

func attemptOutcome(att model.Attempt) string {
	if att.FailureReason != "" {
		return "translation_failed"
	}
	if att.Report != nil {
		return string(att.Report.Verdict)
	}
	return "unknown"
}

func attemptEvents(att model.Attempt) []registry.Event {
	typ := "attempt_recorded"
	msg := attemptOutcome(att)
	var data string
	if att.Report != nil {
		if encoded, err := json.Marshal(att.Report); err == nil {
			data = string(encoded)
		}
	}
	return []registry.Event{{Type: typ, Message: msg, DataJSON: data}}
}
