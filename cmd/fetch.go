package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanorth/safari-bingo/internal/animals"
)

func newFetchCmd(a *app) *cobra.Command {
	var csvFile string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download photos for every animal in the table",
		Long: `Download the photo of every animal that does not have one yet.

Useful to fill the cache before going offline. Failed downloads are logged
and retried on the next run.`,
		Example: `  safari-bingo fetch -i animals.csv --jobs 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := animals.NewLoader(csvFile).Load()
			if err != nil {
				return fmt.Errorf("failed to load animals: %w", err)
			}

			p, err := a.pipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.generator.Prefetch(cmd.Context(), records, a.cfg.Jobs)
			logSummary(a, res)
			if err != nil {
				return err
			}
			if res.FetchFailed > 0 {
				return fmt.Errorf("%d of %d downloads failed", res.FetchFailed, len(records))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&csvFile, "csv-file", "i", "", "Path to input file (CSV or Parquet)")
	cmd.Flags().Int("jobs", 1, "Number of photos to download at once")

	_ = cmd.MarkFlagRequired("csv-file")

	return cmd
}
