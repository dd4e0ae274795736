package translate

import (
	"fmt"
	"strings"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/topology"
)

// instructions builds the fixed prompt contract for the completion service.
func instructions(topo topology.Topology) string {
	var b strings.Builder
	b.WriteString("You are an SDN rule generator for an emulated network testbed.\n\n")
	b.WriteString(topo.Summary())
	b.WriteString("\n\n")
	b.WriteString("Translate the user's intent into a JSON configuration with this shape:\n")
	b.WriteString(`{"rules":[{"switch_id":"s1","match_src_ip":"10.0.0.1","match_dst_ip":"10.0.0.2","action":"drop"}]}`)
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("- action is one of: drop, allow, limit (limit requires loss_pct).\n")
	b.WriteString("- match_src_ip and match_dst_ip are host addresses from the topology, or \"*\".\n")
	b.WriteString("- Rules are evaluated first-match.\n")
	b.WriteString("- Only output the JSON object, nothing else. No explanations, no code fences.\n")
	return b.String()
}

// input builds the per-attempt user message: the intent plus, after a
// failed attempt, the explicit discrepancies. Raw network state never goes
// into the prompt.
func input(intent model.Intent, fb *model.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User intent: %q\n", intent.Text)
	if fb == nil || len(fb.Discrepancies) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\nThe previous configuration (attempt %d) FAILED verification:\n", fb.DerivedFromAttempt)
	for _, d := range fb.Discrepancies {
		fmt.Fprintf(&b, "- %s: %s\n", d.Assertion, d.Explanation)
	}
	b.WriteString("\nGenerate a different configuration that satisfies the intent.\n")
	return b.String()
}

// stripFences removes markdown code fences some models still wrap around
// their output despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	parts := strings.Split(s, "```")
	if len(parts) >= 2 {
		s = parts[1]
	}
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}
