package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "sessions",
		Short:        "List sessions, newest first",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeFn, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			summaries, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no sessions")
				return nil
			}

			fmt.Println(styleHeader.Render("SESSION                               STATE     ATTEMPTS  TOPOLOGY  INTENT"))
			for _, sum := range summaries {
				fmt.Printf("%-36s  %-18s  %d/%d  %-8s  %s\n",
					sum.ID, stateLabel(sum.State), sum.Attempts, sum.MaxAttempts, sum.TopologyRef, sum.IntentText)
			}
			return nil
		},
	}
	return cmd
}
