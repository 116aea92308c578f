package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/store"
)

var (
	evidenceDir     string
	evidenceCompany string
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Regenerate evidence screenshots from stored results",
	Long:  "Re-reads each report with a stored successful result, locates the value and renders the highlighted page. One screenshot is kept per company, for its most recent year.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if evidenceDir != "" {
			cfg.Extract.InputDir = evidenceDir
		}

		env, err := initExtract(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Store.ListResults(ctx, store.ResultFilter{Symbol: evidenceCompany, SuccessOnly: true})
		if err != nil {
			return eris.Wrap(err, "evidence: list results")
		}

		var captured, missing int
		for _, rec := range latestPerCompany(recs) {
			if ctx.Err() != nil {
				break
			}
			log := zap.L().With(zap.String("company", rec.CompanySymbol), zap.String("pdf", rec.PDFFilename))

			doc, err := env.Reader.Read(ctx, filepath.Join(cfg.Extract.InputDir, rec.PDFFilename))
			if err != nil {
				log.Warn("evidence: cannot read report", zap.Error(err))
				missing++
				continue
			}
			art, err := env.Evidence.Capture(ctx, doc, rec)
			if err != nil {
				log.Warn("evidence: capture failed", zap.Error(err))
				missing++
				continue
			}
			if art == nil {
				missing++
				continue
			}
			captured++
		}

		fmt.Fprintf(os.Stdout, "Captured %d screenshots, %d without evidence.\n", captured, missing)
		return nil
	},
}

func init() {
	evidenceCmd.Flags().StringVar(&evidenceDir, "dir", "", "directory of annual report PDFs (default from config)")
	evidenceCmd.Flags().StringVar(&evidenceCompany, "company", "", "only this company symbol")
	rootCmd.AddCommand(evidenceCmd)
}

// latestPerCompany keeps the highest-year record of each company, in first
// seen order.
func latestPerCompany(recs []model.DocumentRecord) []model.DocumentRecord {
	idx := make(map[string]int)
	var out []model.DocumentRecord
	for _, r := range recs {
		i, ok := idx[r.CompanySymbol]
		if !ok {
			idx[r.CompanySymbol] = len(out)
			out = append(out, r)
			continue
		}
		if r.Year > out[i].Year {
			out[i] = r
		}
	}
	return out
}
