package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"payflow/internal/adapters/storage/postgres"
	"payflow/internal/reports"
)

func (c *cli) reportCmd() *cobra.Command {
	var merchant string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print revenue and GST reports from the entity store",
	}
	cmd.PersistentFlags().StringVar(&merchant, "merchant", "", "restrict to one merchant id")

	revenueCmd := &cobra.Command{
		Use:   "revenue",
		Short: "Revenue, refunds and success rate per period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, _ := cmd.Flags().GetString("period")
			days, _ := cmd.Flags().GetInt("days")
			return c.withReports(cmd.Context(), merchant, func(svc *reports.Service, id *uuid.UUID) error {
				r, err := svc.Revenue(cmd.Context(), period, days, id)
				if err != nil {
					return err
				}
				printRevenue(r)
				return nil
			})
		},
	}
	revenueCmd.Flags().String("period", "daily", "daily, weekly or monthly")
	revenueCmd.Flags().Int("days", reports.DefaultLookbackDays, "lookback in days (1-365)")

	gstCmd := &cobra.Command{
		Use:   "gst",
		Short: "Monthly GST breakdown for an Indian financial year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fy, _ := cmd.Flags().GetInt("fy")
			return c.withReports(cmd.Context(), merchant, func(svc *reports.Service, id *uuid.UUID) error {
				r, err := svc.GST(cmd.Context(), fy, id)
				if err != nil {
					return err
				}
				printGST(r)
				return nil
			})
		},
	}
	gstCmd.Flags().Int("fy", 0, "starting year of the financial year, e.g. 2024 for FY 2024-25 (default current)")

	cmd.AddCommand(revenueCmd, gstCmd)
	return cmd
}

func (c *cli) withReports(ctx context.Context, merchant string, fn func(svc *reports.Service, id *uuid.UUID) error) error {
	if c.cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is not configured")
	}
	var id *uuid.UUID
	if merchant != "" {
		parsed, err := uuid.Parse(merchant)
		if err != nil {
			return fmt.Errorf("invalid merchant id: %w", err)
		}
		id = &parsed
	}

	repo, err := postgres.NewRepository(ctx, c.cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	return fn(reports.NewService(repo, c.cfg.Reports.Location()), id)
}

func printRevenue(r *reports.RevenueReport) {
	color.New(color.Bold).Printf("Revenue (%s, last %d days)\n", r.Period, r.Days)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PERIOD\tGMV\tREFUNDS\tNET\tTXNS\tOK\tFAILED\tSUCCESS %\t")
	for _, b := range append(r.Buckets, r.Total) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.2f\t\n",
			b.Period,
			reports.FormatMinor(b.GMV),
			reports.FormatMinor(b.Refunds),
			reports.FormatMinor(b.NetRevenue),
			b.TransactionCount, b.SuccessCount, b.FailedCount, b.SuccessRate)
	}
	_ = w.Flush()
}

func printGST(r *reports.GSTReport) {
	color.New(color.Bold).Printf("GST report %s\n", r.Label)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "MONTH\tGROSS\tREFUNDS\tTAXABLE\tCGST\tSGST\tTAX\tTOTAL\t")
	for _, l := range append(r.Lines, r.Total) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			l.Month,
			reports.FormatMinor(l.Gross),
			reports.FormatMinor(l.Refunds),
			reports.FormatMinor(l.NetTaxable),
			reports.FormatMinor(l.CGST),
			reports.FormatMinor(l.SGST),
			reports.FormatMinor(l.TotalTax),
			reports.FormatMinor(l.TotalWithTax))
	}
	_ = w.Flush()
}
