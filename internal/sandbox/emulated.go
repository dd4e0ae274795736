package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

// Sandbox is one isolated emulated network instance. Probe observations are
// attributable solely to the currently deployed configuration: Reset
// restores the clean baseline with no residual rules or counters.
type Sandbox interface {
	Topology() topology.Topology
	Deploy(ctx context.Context, cfg model.CandidateConfig) error
	Reset(ctx context.Context) error
	ProbeReachability(ctx context.Context, src, dst string) (bool, error)
	ProbeLoss(ctx context.Context, src, dst string, trials int) (float64, error)
	ProbeLatency(ctx context.Context, src, dst string) (time.Duration, error)
	Snapshot() string
}

// Network is the in-process emulated network: hosts on switches with a
// first-match flow table. It models the behavior the pipeline needs
// (reachability, loss, latency) rather than packet mechanics.
type Network struct {
	mu      sync.Mutex
	topo    topology.Topology
	rules   []Rule
	hits    []int
	deploys int
	resets  int
}

// NewNetwork creates a clean emulated network for the topology.
func NewNetwork(topo topology.Topology) *Network {
	return &Network{topo: topo}
}

// Topology returns the network's topology.
func (n *Network) Topology() topology.Topology {
	return n.topo
}

// Deploy applies a candidate configuration. Payloads the emulator cannot
// accept return DeployRejected; nothing is installed in that case.
func (n *Network) Deploy(ctx context.Context, cfg model.CandidateConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rules, err := parseRules(n.topo, cfg)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rules = append(n.rules, rules...)
	n.hits = make([]int, len(n.rules))
	n.deploys++
	return nil
}

// Reset returns the network to the clean baseline: no rules, no counters.
func (n *Network) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rules = nil
	n.hits = nil
	n.resets++
	return nil
}

// ProbeReachability reports whether src can reach dst under the deployed
// rules.
func (n *Network) ProbeReachability(ctx context.Context, src, dst string) (bool, error) {
	rule, _, err := n.classify(ctx, src, dst)
	if err != nil {
		return false, err
	}
	return rule == nil || rule.Action != ActionDrop, nil
}

// ProbeLoss samples packet loss between src and dst over the given number
// of trials and returns the observed loss percentage.
func (n *Network) ProbeLoss(ctx context.Context, src, dst string, trials int) (float64, error) {
	if trials <= 0 {
		trials = 1
	}
	var lost float64
	for i := 0; i < trials; i++ {
		rule, _, err := n.classify(ctx, src, dst)
		if err != nil {
			return 0, err
		}
		switch {
		case rule == nil, rule.Action == ActionAllow:
		case rule.Action == ActionDrop:
			lost += 100
		case rule.Action == ActionLimit:
			lost += rule.LossPct
		}
	}
	return lost / float64(trials), nil
}

// ProbeLatency measures round-trip latency between src and dst. On a
// dropped path no reply ever arrives: the probe blocks until its deadline.
func (n *Network) ProbeLatency(ctx context.Context, src, dst string) (time.Duration, error) {
	rule, hosts, err := n.classify(ctx, src, dst)
	if err != nil {
		return 0, err
	}
	if rule != nil && rule.Action == ActionDrop {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return n.topo.PathLatency(hosts[0], hosts[1]), nil
}

// Snapshot renders the flow table and counters for diagnostics. The text is
// carried opaquely on Feedback, never fed into prompts.
func (n *Network) Snapshot() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "topology=%s deploys=%d resets=%d\n", n.topo.Name, n.deploys, n.resets)
	if len(n.rules) == 0 {
		b.WriteString("flow-table: empty\n")
		return b.String()
	}
	b.WriteString("flow-table:\n")
	for i, r := range n.rules {
		fmt.Fprintf(&b, "  [%d] src=%s dst=%s action=%s", i, orWildcard(r.MatchSrcIP), orWildcard(r.MatchDstIP), r.Action)
		if r.Action == ActionLimit {
			fmt.Fprintf(&b, " loss_pct=%.1f", r.LossPct)
		}
		fmt.Fprintf(&b, " hits=%d\n", n.hits[i])
	}
	return b.String()
}

// classify resolves both endpoints and finds the first matching rule,
// counting the hit.
func (n *Network) classify(ctx context.Context, src, dst string) (*Rule, [2]topology.Host, error) {
	var hosts [2]topology.Host
	if err := ctx.Err(); err != nil {
		return nil, hosts, err
	}
	srcHost, ok := n.topo.HostByName(src)
	if !ok {
		return nil, hosts, fmt.Errorf("unknown host %q", src)
	}
	dstHost, ok := n.topo.HostByName(dst)
	if !ok {
		return nil, hosts, fmt.Errorf("unknown host %q", dst)
	}
	hosts[0], hosts[1] = srcHost, dstHost

	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.rules {
		if n.rules[i].matches(srcHost.IP, dstHost.IP) {
			n.hits[i]++
			return &n.rules[i], hosts, nil
		}
	}
	return nil, hosts, nil
}

func orWildcard(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
