package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mei-diagnostic/internal/calendar"
	"mei-diagnostic/internal/domain"
	"mei-diagnostic/internal/usecase"
)

var (
	diagnoseJSON     bool
	diagnoseQuiet    bool
	diagnoseProgress bool
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <cnpj>...",
	Short: "Run a fresh diagnostic for one or more CNPJs",
	Long: `Runs the full diagnostic (fetch, normalize, classify, estimate) for each
CNPJ and stores the result as its latest snapshot. Several CNPJs are run
concurrently, up to engine.max_concurrent_runs at a time.

A failed run leaves the previously stored snapshot untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "print run reports as JSON")
	diagnoseCmd.Flags().BoolVarP(&diagnoseQuiet, "quiet", "q", false, "do not print the narration")
	diagnoseCmd.Flags().BoolVar(&diagnoseProgress, "progress", false, "show elapsed seconds on stderr while running")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := newEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	reports := make([]*domain.RunReport, len(args))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Engine.MaxConcurrentRuns)
	for i, cnpj := range args {
		i, cnpj := i, cnpj
		g.Go(func() error {
			if _, err := engine.Warm(gctx, cnpj); err != nil {
				logger.Warn("snapshot cache unavailable", zap.String("entity_id", cnpj), zap.Error(err))
			}
			var opts []usecase.RunOption
			if diagnoseProgress && len(args) == 1 {
				opts = append(opts, usecase.WithTicker(func(seconds int) {
					fmt.Fprintf(os.Stderr, "\r%s: %ds elapsed", cnpj, seconds)
				}))
			}
			// Failures are reported per entity and must not cancel the others.
			reports[i], _ = engine.Run(gctx, cnpj, opts...)
			return nil
		})
	}
	_ = g.Wait()
	if diagnoseProgress && len(args) == 1 {
		fmt.Fprintln(os.Stderr)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, report := range reports {
		if report.State == domain.RunFailed {
			failed++
		}
		if diagnoseJSON {
			if err := printJSON(out, report); err != nil {
				return err
			}
			continue
		}
		printReport(out, report, !diagnoseQuiet)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d diagnostics failed", failed, len(reports))
	}
	return nil
}

func printReport(w io.Writer, report *domain.RunReport, narrate bool) {
	fmt.Fprintf(w, "== CNPJ %s (run %s)\n", report.EntityID, report.RunID)
	if narrate {
		for _, line := range report.Narration {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	if report.State == domain.RunFailed {
		fmt.Fprintf(w, "FAILED during %s: %s\n\n", report.FailedDuring, report.Error)
		return
	}
	if !report.Applied {
		fmt.Fprintln(w, "result discarded: a newer run for this CNPJ finished first")
	}
	printSnapshot(w, report.Snapshot)
}

func printSnapshot(w io.Writer, s *domain.DiagnosticSnapshot) {
	if s == nil {
		return
	}
	estimated := ""
	if s.IsEstimated {
		estimated = " (includes estimate)"
	}
	fmt.Fprintf(w, "status:               %s\n", strings.ToUpper(string(s.ComplianceState)))
	fmt.Fprintf(w, "total debt:           R$ %s%s\n", s.TotalDebt.StringFixed(2), estimated)
	fmt.Fprintf(w, "pending declarations: %d\n", s.PendingFilingCount)
	fmt.Fprintf(w, "computed at:          %s\n", s.ComputedAt.In(calendar.BRT).Format("02/01/2006 15:04:05"))

	if len(s.PeriodicObligations) > 0 {
		fmt.Fprintln(w, "DAS guides:")
		for _, o := range s.PeriodicObligations {
			due := "-"
			if o.DueDate != nil {
				due = o.DueDate.Format("02/01/2006")
			}
			amount := "invalid"
			if o.AmountValid {
				amount = "R$ " + o.Amount.StringFixed(2)
			}
			fmt.Fprintf(w, "  %-16s due %-10s %-12s %s\n", o.Period, due, amount, o.DerivedStatus)
		}
	}
	if len(s.AnnualFilings) > 0 {
		fmt.Fprintln(w, "DASN declarations:")
		for _, f := range s.AnnualFilings {
			fmt.Fprintf(w, "  %d  %s\n", f.Year, f.DerivedStatus)
		}
	}
	for _, e := range s.EstimatedPeriods {
		fmt.Fprintf(w, "estimated %d: %d months, R$ %s\n", e.Year, e.Months, e.Amount.StringFixed(2))
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v any) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(body))
	return err
}
