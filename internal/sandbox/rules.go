// Package sandbox owns emulated-network instances: it applies candidate
// configurations, probes behavior, and guarantees a clean reset between
// attempts.
package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

// Action is what a matching rule does to traffic.
type Action string

const (
	ActionDrop  Action = "drop"
	ActionAllow Action = "allow"
	ActionLimit Action = "limit"
)

// Rule is one flow rule in the sdn-rules/v1 format. Empty or "*" match
// fields are wildcards.
type Rule struct {
	SwitchID   string  `json:"switch_id"`
	MatchSrcIP string  `json:"match_src_ip"`
	MatchDstIP string  `json:"match_dst_ip"`
	Action     Action  `json:"action"`
	LossPct    float64 `json:"loss_pct,omitempty"`
}

type ruleSet struct {
	Rules []Rule `json:"rules"`
}

// parseRules decodes a candidate configuration into rules, validating it
// against the topology. Any violation is a rejection detail, not an
// internal error: the emulator refusing a payload is a normal FAIL path.
func parseRules(topo topology.Topology, cfg model.CandidateConfig) ([]Rule, error) {
	if cfg.Format != model.ConfigFormatSDNRules {
		return nil, &model.DeployRejected{Detail: fmt.Sprintf("unsupported config format %q", cfg.Format)}
	}
	var rs ruleSet
	dec := json.NewDecoder(strings.NewReader(cfg.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return nil, &model.DeployRejected{Detail: fmt.Sprintf("malformed rule payload: %v", err)}
	}
	if len(rs.Rules) == 0 {
		return nil, &model.DeployRejected{Detail: "rule payload contains no rules"}
	}
	for i, r := range rs.Rules {
		if r.SwitchID != "" && !topo.HasSwitch(r.SwitchID) {
			return nil, &model.DeployRejected{Detail: fmt.Sprintf("rule %d references unknown switch %q", i, r.SwitchID)}
		}
		for _, ip := range []string{r.MatchSrcIP, r.MatchDstIP} {
			if ip == "" || ip == "*" {
				continue
			}
			if _, ok := topo.HostByIP(ip); !ok {
				return nil, &model.DeployRejected{Detail: fmt.Sprintf("rule %d references unknown address %q", i, ip)}
			}
		}
		switch r.Action {
		case ActionDrop, ActionAllow:
		case ActionLimit:
			if r.LossPct <= 0 || r.LossPct > 100 {
				return nil, &model.DeployRejected{Detail: fmt.Sprintf("rule %d: limit requires loss_pct in (0, 100]", i)}
			}
		default:
			return nil, &model.DeployRejected{Detail: fmt.Sprintf("rule %d: unsupported action %q", i, r.Action)}
		}
	}
	return rs.Rules, nil
}

func (r Rule) matches(srcIP, dstIP string) bool {
	return wildcardEq(r.MatchSrcIP, srcIP) && wildcardEq(r.MatchDstIP, dstIP)
}

func wildcardEq(pattern, value string) bool {
	return pattern == "" || pattern == "*" || pattern == value
}
