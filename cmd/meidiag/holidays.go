package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mei-diagnostic/internal/calendar"
)

var holidaysCmd = &cobra.Command{
	Use:   "holidays <year>",
	Short: "List the national holidays used for due-date rolling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, err := strconv.Atoi(args[0])
		if err != nil || year < 1900 || year > 2199 {
			return fmt.Errorf("invalid year %q", args[0])
		}
		out := cmd.OutOrStdout()
		for _, h := range calendar.Holidays(year) {
			fmt.Fprintf(out, "%s  %-9s  %s\n", h.Date.Format("02/01/2006"), h.Date.Weekday(), h.Name)
		}
		return nil
	},
}
