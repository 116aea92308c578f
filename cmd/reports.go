package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/reports"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Download annual report PDFs",
}

// -- reports fetch --

var reportsFetchCmd = &cobra.Command{
	Use:   "fetch [symbol...]",
	Short: "Download each company's latest annual statement from its exchange profile",
	Long:  "Saves <symbol>_annual_<year>.pdf under --dir for every symbol given, or for every company with stored ownership data when none are. Files already present are kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			cfg.Reports.Dir = dir
		}
		if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
			cfg.Reports.Concurrency = n
		}

		symbols := args
		if len(symbols) == 0 {
			st, err := initStore(ctx, "reports")
			if err != nil {
				return err
			}
			rows, err := st.ListOwnership(ctx, "")
			_ = st.Close()
			if err != nil {
				return err
			}
			symbols = ownershipSymbols(rows)
			if len(symbols) == 0 {
				fmt.Fprintln(os.Stderr, "No symbols given and no ownership data stored; run 'ownership fetch' first.")
				return nil
			}
		} else if err := cfg.Validate("reports"); err != nil {
			return err
		}

		d := reports.NewHTTPDownloader(cfg.Reports, cfg.Ownership.UserAgent, time.Duration(cfg.Ownership.TimeoutSecs)*time.Second)
		sum, _, err := d.FetchAll(ctx, symbols)
		printReportsSummary(os.Stdout, sum)
		return err
	},
}

func init() {
	reportsFetchCmd.Flags().String("dir", "", "directory for downloaded PDFs (default from config)")
	reportsFetchCmd.Flags().Int("concurrency", 0, "companies downloaded in parallel (default from config)")

	reportsCmd.AddCommand(reportsFetchCmd)
	rootCmd.AddCommand(reportsCmd)
}

// ownershipSymbols returns the distinct symbols of rows.
func ownershipSymbols(rows []model.Ownership) []string {
	seen := make(map[string]bool, len(rows))
	var out []string
	for _, r := range rows {
		if r.Symbol == "" || seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		out = append(out, r.Symbol)
	}
	return out
}

func printReportsSummary(w io.Writer, sum reports.Summary) {
	fmt.Fprintf(w, "Downloaded %d, already present %d, failed %d.\n", sum.Downloaded, sum.Skipped, len(sum.Failed))
	if len(sum.Failed) > 0 {
		fmt.Fprintf(w, "Failed: %s\n", strings.Join(sum.Failed, ", "))
	}
}
