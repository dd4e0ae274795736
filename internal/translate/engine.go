// Package translate turns an intent plus prior feedback into a candidate
// configuration through the LLM collaborator, with local schema validation.
package translate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/intentlab/vdip/internal/llm"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

//go:embed schema.json
var candidateSchemaJSON string

// Engine is the translation engine. It is purely functional from the
// pipeline's perspective: its only side effect is the outbound completion
// request.
type Engine struct {
	completer     llm.Completer
	schemaRetries int
	timeout       time.Duration
}

// NewEngine constructs a translation engine. schemaRetries is the number of
// silent re-requests allowed after a syntactically invalid response; the
// retries never consume the session's attempt budget.
func NewEngine(completer llm.Completer, schemaRetries int, timeout time.Duration) *Engine {
	if schemaRetries < 0 {
		schemaRetries = 0
	}
	return &Engine{completer: completer, schemaRetries: schemaRetries, timeout: timeout}
}

// Translate generates a candidate configuration for the intent. feedback is
// nil on the first attempt. A response that never validates against the
// configuration schema escalates as TranslationFailure(SCHEMA_INVALID); a
// completion that exceeds its timeout as TranslationFailure(TIMEOUT).
func (e *Engine) Translate(ctx context.Context, intent model.Intent, topo topology.Topology, feedback *model.Feedback) (model.CandidateConfig, error) {
	req := llm.CompletionRequest{
		Instructions: instructions(topo),
		Input:        input(intent, feedback),
	}

	var lastDetail string
	for try := 0; try <= e.schemaRetries; try++ {
		body, err := e.complete(ctx, req)
		if err != nil {
			return model.CandidateConfig{}, err
		}
		if detail := validateCandidate(body); detail != "" {
			lastDetail = detail
			log.Debug().
				Str("intent_id", intent.ID).
				Int("schema_retry", try).
				Str("detail", detail).
				Msg("candidate failed schema validation")
			continue
		}
		return model.CandidateConfig{Format: model.ConfigFormatSDNRules, Body: body}, nil
	}

	return model.CandidateConfig{}, &model.TranslationFailure{
		Reason: model.ReasonSchemaInvalid,
		Detail: fmt.Sprintf("no valid configuration after %d re-requests: %s", e.schemaRetries, lastDetail),
	}
}

func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.completer.Complete(callCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			// External cancellation is not a translation failure.
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &model.TranslationFailure{Reason: model.ReasonTimeout, Detail: "completion timed out"}
		}
		return "", &model.TranslationFailure{Reason: model.ReasonTimeout, Detail: err.Error()}
	}
	return stripFences(resp.OutputText), nil
}

// validateCandidate checks the body against the sdn-rules/v1 schema and
// returns a detail string when invalid.
func validateCandidate(body string) string {
	schemaLoader := gojsonschema.NewStringLoader(candidateSchemaJSON)
	documentLoader := gojsonschema.NewStringLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Sprintf("not valid JSON: %v", err)
	}
	if result.Valid() {
		return ""
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return strings.Join(errs, "; ")
}
