package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reinvest-cli/internal/export"
	"github.com/sells-group/reinvest-cli/internal/extract"
	"github.com/sells-group/reinvest-cli/internal/model"
)

var (
	extractDir         string
	extractLimit       int
	extractOut         string
	extractEvidence    bool
	extractConcurrency int
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf or glob...]",
	Short: "Extract retained earnings from annual report PDFs",
	Long:  "Runs the table, regex and vision strategies over every PDF in --dir (or the given files/globs), stores one result per company and year, and writes the results JSON file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyExtractFlags(cmd)

		paths, err := reportPaths(args, cfg.Extract.InputDir, cfg.Batch.Limit)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "No PDF files found.")
			return nil
		}

		env, err := initExtract(ctx, cfg.Evidence.Enabled)
		if err != nil {
			return err
		}
		defer env.Close()

		var ev extract.EvidenceSink
		if env.Evidence != nil {
			ev = env.Evidence
		}
		runner := extract.NewRunner(env.Extractor, env.Store, ev, cfg.Batch.Concurrency)

		summary, records, runErr := runner.Run(ctx, paths)
		if runErr != nil && len(records) == 0 {
			return eris.Wrap(runErr, "extract")
		}

		if err := writeResultsFile(cfg.Extract.OutputPath, records); err != nil {
			return err
		}
		printBatchSummary(os.Stdout, summary)

		if runErr != nil {
			zap.L().Warn("extract: batch interrupted", zap.Error(runErr))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDir, "dir", "", "directory of annual report PDFs (default from config)")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "max number of reports to process (0 = all)")
	extractCmd.Flags().StringVar(&extractOut, "out", "", "results JSON path (default from config)")
	extractCmd.Flags().BoolVar(&extractEvidence, "evidence", true, "capture highlighted evidence screenshots")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	rootCmd.AddCommand(extractCmd)
}

// applyExtractFlags overrides config with explicitly set flags.
func applyExtractFlags(cmd *cobra.Command) {
	if extractDir != "" {
		cfg.Extract.InputDir = extractDir
	}
	if extractLimit > 0 {
		cfg.Batch.Limit = extractLimit
	}
	if extractOut != "" {
		cfg.Extract.OutputPath = extractOut
	}
	if cmd.Flags().Changed("evidence") {
		cfg.Evidence.Enabled = extractEvidence
	}
	if extractConcurrency > 0 {
		cfg.Batch.Concurrency = extractConcurrency
	}
}

// reportPaths expands args (files or globs) or, without args, lists dir.
func reportPaths(args []string, dir string, limit int) ([]string, error) {
	if len(args) == 0 {
		return extract.FindReports(dir, limit)
	}

	seen := make(map[string]bool)
	var paths []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: bad pattern %q", arg)
		}
		for _, m := range matches {
			if seen[m] || !strings.EqualFold(filepath.Ext(m), ".pdf") {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func writeResultsFile(path string, records []model.DocumentRecord) error {
	if path == "" || path == "-" {
		return export.WriteJSON(os.Stdout, records)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "extract: create dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "extract: create output file %s", path)
	}
	defer f.Close() //nolint:errcheck
	if err := export.WriteJSON(f, records); err != nil {
		return err
	}
	zap.L().Info("extract: wrote results", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}

func printBatchSummary(w io.Writer, s model.BatchSummary) {
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Total:      %d\n", s.Total)
	fmt.Fprintf(w, "Succeeded:  %d (%.1f%%)\n", s.Succeeded, s.SuccessRate()*100)
	fmt.Fprintf(w, "Failed:     %d\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:    %d\n", s.Skipped)
	}

	if len(s.Flagged) > 0 {
		fmt.Fprintf(w, "\nFlagged for review (%d):\n", len(s.Flagged))
		for _, r := range s.Flagged {
			fmt.Fprintf(w, "  %-8s %-30s %15s  %s\n", r.CompanySymbol, r.PDFFilename, r.Value, r.Method)
		}
	}
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(s.Failures))
		for _, r := range s.Failures {
			fmt.Fprintf(w, "  %-8s %-30s %s\n", r.CompanySymbol, r.PDFFilename, r.Error)
		}
	}
}
