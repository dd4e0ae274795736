package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/sandbox"
	"github.com/intentlab/vdip/internal/topology"
)

func deployedNetwork(t *testing.T, body string) *sandbox.Network {
	t.Helper()
	topo, err := topology.Parse([]byte(`
name: pair
switches: [s1]
hosts:
  - {name: h1, ip: 10.0.0.1, switch: s1, link_latency_ms: 1}
  - {name: h2, ip: 10.0.0.2, switch: s1, link_latency_ms: 1}
`))
	require.NoError(t, err)
	net := sandbox.NewNetwork(topo)
	if body != "" {
		require.NoError(t, net.Deploy(context.Background(), model.CandidateConfig{
			Format: model.ConfigFormatSDNRules,
			Body:   body,
		}))
	}
	return net
}

func blockContract() model.Contract {
	return model.Contract{
		Assertions: []model.Assertion{
			{Name: "h1->h2 unreachable", Kind: model.AssertReachability, Source: "h1", Dest: "h2"},
		},
		Trials:       3,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

func allowContract() model.Contract {
	return model.Contract{
		Assertions: []model.Assertion{
			{Name: "h1->h2 reachable", Kind: model.AssertReachability, Source: "h1", Dest: "h2", ExpectReachable: true},
			{Name: "h1->h2 loss <= 1.0%", Kind: model.AssertLoss, Source: "h1", Dest: "h2", MaxLossPercent: 1.0},
			{Name: "h1->h2 latency <= 50ms", Kind: model.AssertLatency, Source: "h1", Dest: "h2", MaxLatency: 50 * time.Millisecond},
		},
		Trials:       3,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

func TestVerify_PassWhenAllAssertionsHold(t *testing.T) {
	t.Parallel()

	net := deployedNetwork(t, "")
	report, err := NewEngine().Verify(context.Background(), net, allowContract())
	require.NoError(t, err)
	require.Equal(t, model.VerdictPass, report.Verdict)
	require.Len(t, report.Assertions, 3)
	for _, a := range report.Assertions {
		require.True(t, a.Passed, a.Name)
	}
}

func TestVerify_FailOnWrongBehavior(t *testing.T) {
	t.Parallel()

	// Intent expects h1->h2 blocked, but nothing is deployed.
	net := deployedNetwork(t, "")
	report, err := NewEngine().Verify(context.Background(), net, blockContract())
	require.NoError(t, err)
	require.Equal(t, model.VerdictFail, report.Verdict)
	require.Equal(t, "unreachable", report.Assertions[0].Expected)
	require.Equal(t, "reachable", report.Assertions[0].Observed)
	require.False(t, report.Assertions[0].Passed)
}

func TestVerify_PassWhenBlocked(t *testing.T) {
	t.Parallel()

	net := deployedNetwork(t, `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`)
	report, err := NewEngine().Verify(context.Background(), net, blockContract())
	require.NoError(t, err)
	require.Equal(t, model.VerdictPass, report.Verdict)
}

func TestVerify_InconclusiveOnProbeTimeout(t *testing.T) {
	t.Parallel()

	// Latency probe against a dropped path never completes.
	net := deployedNetwork(t, `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`)
	contract := model.Contract{
		Assertions: []model.Assertion{
			{Name: "h1->h2 latency <= 50ms", Kind: model.AssertLatency, Source: "h1", Dest: "h2", MaxLatency: 50 * time.Millisecond},
		},
		Trials:       1,
		ProbeTimeout: 20 * time.Millisecond,
	}
	report, err := NewEngine().Verify(context.Background(), net, contract)
	require.NoError(t, err)
	require.Equal(t, model.VerdictInconclusive, report.Verdict)
	require.True(t, report.Assertions[0].TimedOut)
	require.Equal(t, "probe timed out", report.Assertions[0].Observed)
}

func TestVerify_TimeoutOutranksFailure(t *testing.T) {
	t.Parallel()

	// One definitive failure plus one timed-out probe: the verdict must be
	// INCONCLUSIVE so feedback can distinguish the two.
	net := deployedNetwork(t, `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`)
	contract := model.Contract{
		Assertions: []model.Assertion{
			{Name: "h1->h2 reachable", Kind: model.AssertReachability, Source: "h1", Dest: "h2", ExpectReachable: true},
			{Name: "h1->h2 latency <= 50ms", Kind: model.AssertLatency, Source: "h1", Dest: "h2", MaxLatency: 50 * time.Millisecond},
		},
		Trials:       1,
		ProbeTimeout: 20 * time.Millisecond,
	}
	report, err := NewEngine().Verify(context.Background(), net, contract)
	require.NoError(t, err)
	require.Equal(t, model.VerdictInconclusive, report.Verdict)
}

func TestVerify_LossTolerancePolicy(t *testing.T) {
	t.Parallel()

	net := deployedNetwork(t, `{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"limit","loss_pct":30}]}`)
	contract := model.Contract{
		Assertions: []model.Assertion{
			{Name: "loss <= 50%", Kind: model.AssertLoss, Source: "h1", Dest: "h2", MaxLossPercent: 50},
			{Name: "loss <= 10%", Kind: model.AssertLoss, Source: "h1", Dest: "h2", MaxLossPercent: 10},
		},
		Trials:       4,
		ProbeTimeout: 100 * time.Millisecond,
	}
	report, err := NewEngine().Verify(context.Background(), net, contract)
	require.NoError(t, err)
	require.Equal(t, model.VerdictFail, report.Verdict)
	require.True(t, report.Assertions[0].Passed)
	require.False(t, report.Assertions[1].Passed)
	require.Equal(t, "30.0% loss", report.Assertions[1].Observed)
}

func TestVerify_PreservesDeclaredOrder(t *testing.T) {
	t.Parallel()

	net := deployedNetwork(t, "")
	contract := allowContract()
	report, err := NewEngine().Verify(context.Background(), net, contract)
	require.NoError(t, err)
	for i, a := range contract.Assertions {
		require.Equal(t, a.Name, report.Assertions[i].Name)
	}
}

func TestVerify_ExternalCancellation(t *testing.T) {
	t.Parallel()

	net := deployedNetwork(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Verify(ctx, net, allowContract())
	require.ErrorIs(t, err, context.Canceled)
}
