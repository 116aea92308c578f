package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/reinvest-cli/internal/ownership"
)

var ownershipCmd = &cobra.Command{
	Use:   "ownership",
	Short: "Load foreign ownership percentages",
}

// -- ownership fetch --

var ownershipFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Scrape the exchange's foreign ownership table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.Ownership.URL = url
		}
		cfg.Ownership.Source = "tadawul"

		st, err := initStore(ctx, "ownership")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := ownership.NewProvider(cfg.Ownership)
		if err != nil {
			return err
		}
		n, err := ownership.Sync(ctx, p, st)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Saved ownership for %d companies.\n", n)
		return nil
	},
}

// -- ownership import --

var ownershipImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import foreign ownership from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("csv")
		if path == "" {
			path = cfg.Ownership.CSVPath
		}
		cfg.Ownership.Source = "file"
		cfg.Ownership.CSVPath = path

		st, err := initStore(ctx, "ownership")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := ownership.NewProvider(cfg.Ownership)
		if err != nil {
			return err
		}
		n, err := ownership.Sync(ctx, p, st)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Imported ownership for %d companies from %s.\n", n, path)
		return nil
	},
}

func init() {
	ownershipFetchCmd.Flags().String("url", "", "foreign ownership report URL (default from config)")
	ownershipImportCmd.Flags().String("csv", "", "CSV or XLSX file with symbol and foreign_ownership columns")

	ownershipCmd.AddCommand(ownershipFetchCmd)
	ownershipCmd.AddCommand(ownershipImportCmd)
	rootCmd.AddCommand(ownershipCmd)
}
