package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/registry"
)

func reportCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:          "report <session-id>",
		Short:        "Render the full audit trail of a session",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, err := store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			events, err := store.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			markdown := reportMarkdown(sess, events)
			if raw {
				fmt.Print(markdown)
				return nil
			}

			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(100),
			)
			if err != nil {
				return err
			}
			out, err := renderer.Render(markdown)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	return cmd
}

// reportMarkdown builds the audit document: intent, verdict, every attempt
// with its configuration, report, and feedback, then the event timeline.
func reportMarkdown(sess model.Session, events []registry.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "- **State:** %s\n", sess.State)
	fmt.Fprintf(&b, "- **Intent:** %s\n", sess.Intent.Text)
	fmt.Fprintf(&b, "- **Topology:** %s\n", sess.Intent.TopologyRef)
	fmt.Fprintf(&b, "- **Attempts:** %d of %d\n", len(sess.Attempts), sess.MaxAttempts)
	if sess.AcceptedAttempt != nil {
		fmt.Fprintf(&b, "- **Accepted attempt:** %d\n", *sess.AcceptedAttempt)
	}
	b.WriteString("\n")

	for _, att := range sess.Attempts {
		fmt.Fprintf(&b, "## Attempt %d\n\n", att.Number)
		if att.FeedbackUsed != nil {
			fmt.Fprintf(&b, "Refined from attempt %d:\n\n", att.FeedbackUsed.DerivedFromAttempt)
			for _, d := range att.FeedbackUsed.Discrepancies {
				fmt.Fprintf(&b, "- %s: %s\n", d.Assertion, d.Explanation)
			}
			b.WriteString("\n")
		}
		if att.FailureReason != "" {
			fmt.Fprintf(&b, "Translation failed: %s\n\n", att.FailureReason)
			continue
		}
		if att.Config != nil {
			fmt.Fprintf(&b, "Configuration (`%s`):\n\n```json\n%s\n```\n\n", att.Config.Format, att.Config.Body)
		}
		if att.Report != nil {
			fmt.Fprintf(&b, "Verdict: **%s**\n\n", att.Report.Verdict)
			b.WriteString("| Assertion | Expected | Observed | Result |\n")
			b.WriteString("|---|---|---|---|\n")
			for _, res := range att.Report.Assertions {
				result := "pass"
				if !res.Passed {
					result = "fail"
					if res.TimedOut {
						result = "timeout"
					}
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", res.Name, res.Expected, res.Observed, result)
			}
			b.WriteString("\n")
		}
	}

	if len(events) > 0 {
		b.WriteString("## Timeline\n\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", ev.At.Format(time.RFC3339), ev.Type, ev.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}
