// Package contract derives expected-behavior contracts from intent text.
//
// Derivation is rule-based: the intent names hosts from the topology and a
// desired posture (block or allow). The resulting assertion order is fixed
// once per intent and preserved through every verification report.
package contract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/intentlab/vdip/internal/config"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

var blockWords = []string{"block", "deny", "drop", "prevent", "isolate", "unreachable"}

// Derive builds the ordered assertion contract for an intent against its
// topology. Tolerances and trial counts come from configuration.
func Derive(intentText string, topo topology.Topology, verify config.VerifyConfig) (model.Contract, error) {
	src, dst, err := endpoints(intentText, topo)
	if err != nil {
		return model.Contract{}, err
	}

	lower := strings.ToLower(intentText)
	block := false
	for _, w := range blockWords {
		if strings.Contains(lower, w) {
			block = true
			break
		}
	}

	pairs := [][2]string{{src, dst}}
	if strings.Contains(lower, "between") || strings.Contains(intentText, "<->") {
		pairs = append(pairs, [2]string{dst, src})
	}

	var assertions []model.Assertion
	for _, p := range pairs {
		if block {
			assertions = append(assertions, model.Assertion{
				Name:            fmt.Sprintf("%s->%s unreachable", p[0], p[1]),
				Kind:            model.AssertReachability,
				Source:          p[0],
				Dest:            p[1],
				ExpectReachable: false,
			})
			continue
		}
		assertions = append(assertions,
			model.Assertion{
				Name:            fmt.Sprintf("%s->%s reachable", p[0], p[1]),
				Kind:            model.AssertReachability,
				Source:          p[0],
				Dest:            p[1],
				ExpectReachable: true,
			},
			model.Assertion{
				Name:           fmt.Sprintf("%s->%s loss <= %.1f%%", p[0], p[1], verify.LossThresholdPct),
				Kind:           model.AssertLoss,
				Source:         p[0],
				Dest:           p[1],
				MaxLossPercent: verify.LossThresholdPct,
			},
			model.Assertion{
				Name:       fmt.Sprintf("%s->%s latency <= %dms", p[0], p[1], verify.LatencyBoundMS),
				Kind:       model.AssertLatency,
				Source:     p[0],
				Dest:       p[1],
				MaxLatency: verify.LatencyBound(),
			},
		)
	}

	return model.Contract{
		Assertions:   assertions,
		Trials:       verify.Trials,
		ProbeTimeout: verify.ProbeTimeout(),
	}, nil
}

// endpoints finds the first two topology hosts mentioned in the intent, in
// order of appearance.
func endpoints(intentText string, topo topology.Topology) (string, string, error) {
	lower := strings.ToLower(intentText)

	type mention struct {
		name string
		pos  int
	}
	var mentions []mention
	for _, h := range topo.Hosts {
		pos := wordIndex(lower, strings.ToLower(h.Name))
		if pos < 0 {
			pos = strings.Index(lower, h.IP)
		}
		if pos >= 0 {
			mentions = append(mentions, mention{name: h.Name, pos: pos})
		}
	}
	if len(mentions) < 2 {
		return "", "", fmt.Errorf("intent must name two hosts from topology %q", topo.Name)
	}
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].pos < mentions[j].pos })
	return mentions[0].name, mentions[1].name, nil
}

// wordIndex finds a whole-word occurrence, so "h1" does not match "h10".
func wordIndex(text, word string) int {
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return -1
		}
		idx += start
		end := idx + len(word)
		beforeOK := idx == 0 || !isWordChar(text[idx-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return idx
		}
		start = idx + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}
