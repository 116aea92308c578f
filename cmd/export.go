package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reinvest-cli/internal/export"
	"github.com/sells-group/reinvest-cli/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export derived reinvested earnings (csv, xlsx) or raw results (json)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		if format == "" {
			format = export.FormatFromPath(out)
		}

		st, err := initStore(ctx, "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := export.Export(ctx, st, format, out)
		if err != nil {
			return err
		}
		if out != "" && out != "-" {
			fmt.Fprintf(os.Stderr, "Wrote %d rows to %s.\n", n, out)
		}
		return nil
	},
}

// -- results --

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Print a summary table of results and derived earnings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := export.BuildRows(ctx, st)
		if err != nil {
			return eris.Wrap(err, "results")
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No results found.")
			return nil
		}

		basis := model.OwnershipBasis(cfg.Ownership.Basis)
		formatResults(os.Stdout, rows, basis)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "", "csv, xlsx or json (default from --out extension, else csv)")
	exportCmd.Flags().String("out", "", "output path (default stdout; required for xlsx)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(resultsCmd)
}

// formatResults writes one line per company/year: retained earnings, the
// ownership percentage for basis and reinvested earnings.
func formatResults(w io.Writer, rows []export.Row, basis model.OwnershipBasis) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tYEAR\tRETAINED\tPCT\tREINVESTED\tNOTE")

	var withDerived int
	for _, r := range rows {
		retained, reinvested, pct := "-", "-", "-"
		if r.RetainedEarnings.Valid {
			retained = model.FormatAmount(r.RetainedEarnings.Decimal)
		}
		if r.Reinvested.Valid {
			reinvested = model.FormatAmount(r.Reinvested.Decimal.Round(2))
			withDerived++
		}
		own := model.Ownership{
			ForeignOwnership: r.ForeignOwnership,
			MaxAllowed:       r.MaxAllowed,
			InvestorLimit:    r.InvestorLimit,
		}
		if p, ok := own.Percentage(basis); ok {
			pct = p.String() + "%"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", r.CompanySymbol, r.Year, retained, pct, reinvested, r.Error)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%d results, %d with reinvested earnings.\n", len(rows), withDerived)
}
