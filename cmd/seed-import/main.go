package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"store-scrape/internal/config"
	"store-scrape/internal/logger"
	"store-scrape/internal/seeds"
	"store-scrape/internal/utils"
)

func main() {
	cmd := &cobra.Command{
		Use:          "seed-import [zip_codes.csv]",
		Short:        "Import zip code centroids into the _zip_seeds table",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles()
			l := logger.Setup()
			path := os.Getenv("SEED_FILE")
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = "zip_codes.csv"
			}
			l.Info("seed_import_start", "path", path)
			f, err := os.Open(path)
			if err != nil {
				l.Error("input_open_error", "err", err)
				return err
			}
			defer f.Close()
			rows, st, err := seeds.ReadCSV(f)
			if err != nil {
				l.Error("input_read_error", "err", err)
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			pool, err := utils.OpenPgxPoolFromEnv(ctx)
			if err != nil {
				l.Error("db_open_error", "err", err)
				return err
			}
			defer pool.Close()
			repo, err := seeds.NewRepository(ctx, pool)
			if err != nil {
				l.Error("schema_error", "err", err)
				return err
			}
			n, err := repo.Upsert(ctx, rows)
			if err != nil {
				l.Error("seed_import_error", "written", n, "err", err)
				return err
			}
			l.Info("seed_import_done", "rows", st.Rows, "skipped", st.Skipped, "written", n)
			return nil
		},
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
