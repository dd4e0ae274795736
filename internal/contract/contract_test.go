package contract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intentlab/vdip/internal/config"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

func testTopo(t *testing.T) topology.Topology {
	t.Helper()
	topo, err := topology.Parse([]byte(`
name: triangle
switches: [s1]
hosts:
  - {name: h1, ip: 10.0.0.1, switch: s1}
  - {name: h2, ip: 10.0.0.2, switch: s1}
  - {name: h10, ip: 10.0.0.10, switch: s1}
`))
	require.NoError(t, err)
	return topo
}

func TestDerive_BlockIntent(t *testing.T) {
	t.Parallel()

	c, err := Derive("Block traffic from h1 to h2", testTopo(t), config.Default().Verify)
	require.NoError(t, err)
	require.Len(t, c.Assertions, 1)

	a := c.Assertions[0]
	require.Equal(t, "h1->h2 unreachable", a.Name)
	require.Equal(t, model.AssertReachability, a.Kind)
	require.Equal(t, "h1", a.Source)
	require.Equal(t, "h2", a.Dest)
	require.False(t, a.ExpectReachable)
	require.Equal(t, 3, c.Trials)
}

func TestDerive_AllowIntent(t *testing.T) {
	t.Parallel()

	c, err := Derive("Ensure h1 can talk to h2", testTopo(t), config.Default().Verify)
	require.NoError(t, err)
	require.Len(t, c.Assertions, 3)

	require.Equal(t, model.AssertReachability, c.Assertions[0].Kind)
	require.True(t, c.Assertions[0].ExpectReachable)
	require.Equal(t, model.AssertLoss, c.Assertions[1].Kind)
	require.Equal(t, 1.0, c.Assertions[1].MaxLossPercent)
	require.Equal(t, model.AssertLatency, c.Assertions[2].Kind)
}

func TestDerive_BetweenEmitsBothDirections(t *testing.T) {
	t.Parallel()

	c, err := Derive("Block all traffic between h1 and h2", testTopo(t), config.Default().Verify)
	require.NoError(t, err)
	require.Len(t, c.Assertions, 2)
	require.Equal(t, "h1->h2 unreachable", c.Assertions[0].Name)
	require.Equal(t, "h2->h1 unreachable", c.Assertions[1].Name)
}

func TestDerive_WholeWordHostMatch(t *testing.T) {
	t.Parallel()

	// "h10" must not be read as a mention of "h1".
	c, err := Derive("Block traffic from h10 to h2", testTopo(t), config.Default().Verify)
	require.NoError(t, err)
	require.Equal(t, "h10", c.Assertions[0].Source)
	require.Equal(t, "h2", c.Assertions[0].Dest)
}

func TestDerive_ByIPAddress(t *testing.T) {
	t.Parallel()

	c, err := Derive("Deny 10.0.0.1 from reaching 10.0.0.2", testTopo(t), config.Default().Verify)
	require.NoError(t, err)
	require.Equal(t, "h1", c.Assertions[0].Source)
	require.Equal(t, "h2", c.Assertions[0].Dest)
}

func TestDerive_RequiresTwoHosts(t *testing.T) {
	t.Parallel()

	_, err := Derive("Block everything from h1", testTopo(t), config.Default().Verify)
	require.Error(t, err)

	_, err = Derive("Block all the things", testTopo(t), config.Default().Verify)
	require.Error(t, err)
}
