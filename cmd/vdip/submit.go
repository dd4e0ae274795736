package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func submitCmd() *cobra.Command {
	var topologyRef string
	var maxAttempts int
	cmd := &cobra.Command{
		Use:          "submit <intent text>",
		Short:        "Submit an intent and wait for the session verdict",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, closeFn, err := buildManager(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			text := strings.Join(args, " ")
			id, err := manager.Submit(cmd.Context(), text, topologyRef, maxAttempts)
			if err != nil {
				return err
			}
			fmt.Printf("session %s\n", id)

			sess, err := manager.Wait(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Print(renderSession(sess))
			return nil
		},
	}
	cmd.Flags().StringVarP(&topologyRef, "topology", "t", "", "topology reference (required)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt budget (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("topology")
	return cmd
}
