package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/cli"
)

var reportFlags struct {
	user   string
	format string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a budget report for a user",
	Long: `Print the current-period budget report for a user.

The report covers every active budget applicable to the user: spend so far,
remaining amount, status, end-of-period forecast and any active override.

Examples:
  # Text report
  sutraledger report --user user-123

  # JSON report for tooling
  sutraledger report --user user-123 --format json`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportFlags.user, "user", "u", "", "user to report on (required)")
	reportCmd.Flags().StringVarP(&reportFlags.format, "format", "f", "text", "output format: text, json")
	reportCmd.MarkFlagRequired("user")
}

func runReport(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(nil)
	if err != nil {
		return cli.NewCommandError("report", err)
	}
	defer eng.Close()

	report, err := eng.manager.Report(context.Background(), reportFlags.user)
	if err != nil {
		return cli.NewCommandError("report", err)
	}

	switch cli.OutputFormat(reportFlags.format) {
	case cli.FormatJSON:
		formatter, err := cli.NewFormatter(cli.FormatJSON)
		if err != nil {
			return err
		}
		return formatter.FormatTo(os.Stdout, report)
	case "", cli.FormatText:
		renderReport(os.Stdout, report)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", reportFlags.format)
	}
}

func renderReport(w io.Writer, report *budget.Report) {
	fmt.Fprintf(w, "Budget report for %s\n", report.UserID)
	fmt.Fprintf(w, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Overall status: %s\n", report.OverallStatus)

	if len(report.Budgets) == 0 {
		fmt.Fprintln(w, "\nNo applicable budgets.")
		return
	}

	for _, b := range report.Budgets {
		u := b.Usage
		fmt.Fprintf(w, "\n%s\n", u.BudgetName)
		fmt.Fprintf(w, "  Period:    %s to %s\n",
			u.PeriodStart.Format("2006-01-02"), u.PeriodEnd.Format("2006-01-02"))
		fmt.Fprintf(w, "  Spent:     $%s of $%s (%s%%)\n",
			u.TotalSpent.StringFixed(2), u.BudgetLimit.StringFixed(2), u.UsagePercent.Round(1))
		fmt.Fprintf(w, "  Remaining: $%s\n", u.Remaining.StringFixed(2))
		fmt.Fprintf(w, "  Status:    %s\n", u.Status)
		fmt.Fprintf(w, "  Forecast:  $%s by period end (%d days remaining)\n",
			u.ForecastEndSpend.StringFixed(2), u.DaysRemaining)

		if b.Override != nil {
			expiry := "no expiry"
			if b.Override.ExpiresAt != nil {
				expiry = "until " + b.Override.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "  Override:  $%s (%s)\n",
				b.Override.NewLimit.StringFixed(2), expiry)
		}

		for _, rec := range b.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
}
