package translate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intentlab/vdip/internal/llm"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

type fakeCompleter struct {
	outputs []string
	errs    []error
	calls   int
	inputs  []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}
	i := f.calls
	f.calls++
	f.inputs = append(f.inputs, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.CompletionResponse{}, f.errs[i]
	}
	if i < len(f.outputs) {
		return llm.CompletionResponse{OutputText: f.outputs[i]}, nil
	}
	return llm.CompletionResponse{}, context.DeadlineExceeded
}

func testTopo(t *testing.T) topology.Topology {
	t.Helper()
	topo, err := topology.Parse([]byte(`
name: pair
switches: [s1]
hosts:
  - {name: h1, ip: 10.0.0.1, switch: s1}
  - {name: h2, ip: 10.0.0.2, switch: s1}
`))
	require.NoError(t, err)
	return topo
}

const validBody = `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`

func testIntent() model.Intent {
	return model.Intent{ID: "i-1", Text: "Block traffic from h1 to h2", TopologyRef: "pair"}
}

func TestTranslate_ValidFirstResponse(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{outputs: []string{validBody}}
	eng := NewEngine(fake, 2, time.Second)

	cfg, err := eng.Translate(context.Background(), testIntent(), testTopo(t), nil)
	require.NoError(t, err)
	require.Equal(t, model.ConfigFormatSDNRules, cfg.Format)
	require.Equal(t, validBody, cfg.Body)
	require.Equal(t, 1, fake.calls)
	require.Contains(t, fake.inputs[0].Instructions, "Host h1 | IP: 10.0.0.1")
	require.Contains(t, fake.inputs[0].Input, "Block traffic from h1 to h2")
}

func TestTranslate_StripsCodeFences(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + validBody + "\n```"
	fake := &fakeCompleter{outputs: []string{fenced}}
	eng := NewEngine(fake, 0, time.Second)

	cfg, err := eng.Translate(context.Background(), testIntent(), testTopo(t), nil)
	require.NoError(t, err)
	require.Equal(t, validBody, cfg.Body)
}

func TestTranslate_SchemaRetriesThenSuccess(t *testing.T) {
	t.Parallel()

	// Malformed twice, valid on the third request: still one attempt's
	// worth of budget from the orchestrator's perspective.
	fake := &fakeCompleter{outputs: []string{"not json", `{"rules":[]}`, validBody}}
	eng := NewEngine(fake, 2, time.Second)

	cfg, err := eng.Translate(context.Background(), testIntent(), testTopo(t), nil)
	require.NoError(t, err)
	require.Equal(t, validBody, cfg.Body)
	require.Equal(t, 3, fake.calls)
}

func TestTranslate_SchemaRetriesExhausted(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{outputs: []string{"junk", "junk", "junk"}}
	eng := NewEngine(fake, 2, time.Second)

	_, err := eng.Translate(context.Background(), testIntent(), testTopo(t), nil)
	var tf *model.TranslationFailure
	require.ErrorAs(t, err, &tf)
	require.Equal(t, model.ReasonSchemaInvalid, tf.Reason)
	require.Equal(t, 3, fake.calls)
}

func TestTranslate_Timeout(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{errs: []error{context.DeadlineExceeded}}
	eng := NewEngine(fake, 0, time.Second)

	_, err := eng.Translate(context.Background(), testIntent(), testTopo(t), nil)
	var tf *model.TranslationFailure
	require.ErrorAs(t, err, &tf)
	require.Equal(t, model.ReasonTimeout, tf.Reason)
}

func TestTranslate_ExternalCancellationPropagates(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{outputs: []string{validBody}}
	eng := NewEngine(fake, 0, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Translate(ctx, testIntent(), testTopo(t), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTranslate_FeedbackGoesIntoPrompt(t *testing.T) {
	t.Parallel()

	fake := &fakeCompleter{outputs: []string{validBody}}
	eng := NewEngine(fake, 0, time.Second)

	fb := &model.Feedback{
		DerivedFromAttempt: 1,
		Discrepancies: []model.Discrepancy{
			{Assertion: "h1->h2 unreachable", Explanation: "expected unreachable, observed reachable with 0.0% loss"},
		},
		RawStateSnapshot: "flow-table: empty",
	}
	_, err := eng.Translate(context.Background(), testIntent(), testTopo(t), fb)
	require.NoError(t, err)

	in := fake.inputs[0].Input
	require.Contains(t, in, "attempt 1")
	require.Contains(t, in, "expected unreachable, observed reachable")
	require.NotContains(t, in, "flow-table", "raw state must never reach the prompt")
}
