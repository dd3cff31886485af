package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanorth/safari-bingo/internal/animals"
	"github.com/alanorth/safari-bingo/internal/card"
)

func newGenerateCmd(a *app) *cobra.Command {
	var csvFile string
	var outputFile string
	var across int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a bingo card",
		Long: `Pick across×across random animals, make sure each has a photo and a thumbnail,
and join the thumbnails into a JPEG grid with a 2 pixel gap between squares.

A YAML manifest listing the animals on the card is written next to the image.`,
		Example: `  # 4x4 card
  safari-bingo generate -i animals.csv -o card.jpg

  # 5x5 card, reproducible, downloading four photos at a time
  safari-bingo generate -a 5 -i animals.parquet -o card.jpg --seed 42 --jobs 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if across < 1 {
				return fmt.Errorf("--across must be at least 1")
			}

			records, err := animals.NewLoader(csvFile).Load()
			if err != nil {
				return fmt.Errorf("failed to load animals: %w", err)
			}
			a.logger.Info("Loaded animals", "count", len(records), "path", csvFile)

			p, err := a.pipeline()
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.generator.Generate(cmd.Context(), records, card.Options{
				Across:     across,
				OutputPath: outputFile,
				Seed:       seed,
				Jobs:       a.cfg.Jobs,
				Source:     csvFile,
			})
			if res != nil {
				logSummary(a, res)
			}
			if err != nil {
				return err
			}

			a.logger.Info("Wrote card", "path", res.OutputPath, "manifest", res.ManifestPath, "seed", res.Seed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&csvFile, "csv-file", "i", "", "Path to input file (CSV or Parquet)")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "Path to output file (JPEG)")
	cmd.Flags().IntVarP(&across, "across", "a", 4, "Number of images across grid")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for picking animals (0 picks one)")
	cmd.Flags().Int("jobs", 1, "Number of photos to download at once")

	_ = cmd.MarkFlagRequired("csv-file")
	_ = cmd.MarkFlagRequired("output-file")

	return cmd
}

func logSummary(a *app, res *card.Result) {
	a.logger.Info("Images",
		"downloaded", res.Downloaded,
		"cached", res.ImagesCached,
		"failed", res.FetchFailed,
	)
	if res.Built+res.ThumbnailsCached+res.BuildFailed+res.MissingSource > 0 {
		a.logger.Info("Thumbnails",
			"built", res.Built,
			"cached", res.ThumbnailsCached,
			"failed", res.BuildFailed,
			"missing_source", res.MissingSource,
		)
	}
}
