package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/reinvest"
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Derive reinvested earnings for every result with ownership data",
	Long:  "Creates one derived record per successful company/year result, using the latest ownership snapshot on or before 31 December of that year. Existing records are never overwritten.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if basis, _ := cmd.Flags().GetString("basis"); basis != "" {
			cfg.Ownership.Basis = basis
		}

		st, err := initStore(ctx, "calculate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		calc := reinvest.NewCalculator(st, model.OwnershipBasis(cfg.Ownership.Basis), cfg.Extract.Currency)
		sum, err := calc.CalculateAll(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Created %d, already present %d, missing ownership %d, invalid %d.\n",
			sum.Created, sum.Existing, sum.MissingOwnership, sum.Invalid)
		return nil
	},
}

// -- correct --

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Manually correct an extracted value",
	Long:  "Replaces the stored result for --company/--year with --value (method manual_correction, confidence high) and recomputes its derived record.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		company, _ := cmd.Flags().GetString("company")
		year, _ := cmd.Flags().GetInt("year")
		value, _ := cmd.Flags().GetString("value")
		if company == "" || year == 0 {
			return eris.New("correct: --company and --year are required")
		}

		st, err := initStore(ctx, "calculate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		calc := reinvest.NewCalculator(st, model.OwnershipBasis(cfg.Ownership.Basis), cfg.Extract.Currency)
		rec, derived, err := calc.Correct(ctx, company, year, value)
		if err != nil {
			return err
		}
		printCorrection(os.Stdout, rec, derived)
		return nil
	},
}

func init() {
	calculateCmd.Flags().String("basis", "", "ownership column: foreign_ownership, max_allowed or investor_limit")

	correctCmd.Flags().String("company", "", "company symbol")
	correctCmd.Flags().Int("year", 0, "fiscal year")
	correctCmd.Flags().String("value", "", "corrected retained earnings, e.g. 5,000,000")
	_ = correctCmd.MarkFlagRequired("company")
	_ = correctCmd.MarkFlagRequired("year")
	_ = correctCmd.MarkFlagRequired("value")

	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(correctCmd)
}

func printCorrection(w io.Writer, rec *model.DocumentRecord, derived *model.DerivedEarningsRecord) {
	fmt.Fprintf(w, "Corrected %s %d: %s %s\n",
		rec.CompanySymbol, rec.Year, rec.Result.Value, rec.Result.Currency)
	if derived == nil {
		fmt.Fprintln(w, "No usable ownership data; no derived record stored.")
		return
	}
	fmt.Fprintf(w, "Reinvested earnings: %s (%s%% of %s)\n",
		model.FormatAmount(derived.Reinvested.Round(2)),
		derived.OwnershipPercentage.String(),
		model.FormatAmount(derived.RetainedEarnings))
}
