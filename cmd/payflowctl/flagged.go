package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"payflow/internal/adapters/analytics/clickhouse"
	"payflow/internal/reports"
)

func (c *cli) flaggedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List the most recent flagged payments recorded by the fraud reporter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			sink, err := clickhouse.Open(cmd.Context(), c.cfg.ClickHouse)
			if err != nil {
				return err
			}
			defer func() {
				if err := sink.Close(); err != nil {
					c.logger.Warn("failed to close ClickHouse connection", "error", err)
				}
			}()

			rows, err := sink.RecentFraudReports(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PAYMENT\tMERCHANT\tAMOUNT\tSTATUS\tREASONS\tOCCURRED AT")
			red := color.New(color.FgRed).SprintFunc()
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
					r.PaymentRef, r.MerchantID, reports.FormatMinor(r.Amount), r.Currency, r.Status,
					red(strings.Join(r.Reasons, ",")), r.OccurredAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "number of reports to show")
	return cmd
}
