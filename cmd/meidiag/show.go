package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mei-diagnostic/internal/usecase"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <cnpj>",
	Short: "Print the latest stored snapshot without querying the webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		snapshot, err := engine.Warm(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if snapshot == nil {
			return fmt.Errorf("no snapshot stored for %s", usecase.NormalizeEntityID(args[0]))
		}
		if showJSON {
			return printJSON(cmd.OutOrStdout(), snapshot)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "== CNPJ %s\n", snapshot.EntityID)
		printSnapshot(cmd.OutOrStdout(), snapshot)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the snapshot as JSON")
}
