package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/intentlab/vdip/internal/model"
)

var (
	styleAccepted = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleRejected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleAborted  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleRunning  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleMuted    = lipgloss.NewStyle().Faint(true)
	styleHeader   = lipgloss.NewStyle().Bold(true).Underline(true)
)

func stateLabel(state model.SessionState) string {
	switch state {
	case model.SessionAccepted:
		return styleAccepted.Render(string(state))
	case model.SessionRejected:
		return styleRejected.Render(string(state))
	case model.SessionAborted:
		return styleAborted.Render(string(state))
	default:
		return styleRunning.Render(string(state))
	}
}

func verdictLabel(verdict model.Verdict) string {
	switch verdict {
	case model.VerdictPass:
		return styleAccepted.Render(string(verdict))
	case model.VerdictFail:
		return styleRejected.Render(string(verdict))
	default:
		return styleAborted.Render(string(verdict))
	}
}

// renderSession prints the session outcome and its attempt history.
func renderSession(sess model.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", stateLabel(sess.State), styleMuted.Render(sess.ID))
	fmt.Fprintf(&b, "intent: %s (topology %s)\n", sess.Intent.Text, sess.Intent.TopologyRef)
	fmt.Fprintf(&b, "attempts: %d of %d\n", len(sess.Attempts), sess.MaxAttempts)

	for _, att := range sess.Attempts {
		switch {
		case att.FailureReason != "":
			fmt.Fprintf(&b, "  #%d %s %s\n", att.Number, styleRejected.Render("TRANSLATION FAILED"), styleMuted.Render(att.FailureReason))
		case att.Report != nil:
			fmt.Fprintf(&b, "  #%d %s\n", att.Number, verdictLabel(att.Report.Verdict))
			for _, res := range att.Report.Assertions {
				mark := styleAccepted.Render("ok")
				if !res.Passed {
					mark = styleRejected.Render("fail")
					if res.TimedOut {
						mark = styleAborted.Render("timeout")
					}
				}
				fmt.Fprintf(&b, "     %s %s: expected %s, observed %s\n", mark, res.Name, res.Expected, res.Observed)
			}
		}
	}

	if cfg := sess.AcceptedConfig(); cfg != nil {
		fmt.Fprintf(&b, "accepted configuration (%s):\n%s\n", cfg.Format, cfg.Body)
	}
	return b.String()
}
