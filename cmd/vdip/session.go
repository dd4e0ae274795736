package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:          "session <id>",
		Short:        "Show a session and its attempt history",
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
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sess)
			}
			fmt.Print(renderSession(sess))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session record")
	return cmd
}
