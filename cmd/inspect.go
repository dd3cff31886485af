package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alanorth/safari-bingo/internal/animals"
	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/storage"
)

func newInspectCmd(a *app) *cobra.Command {
	var csvFile string
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List animals and the state of their cached photos",
		Long: `Validate the animal table and show which animals already have a photo and
a thumbnail in the images directory.`,
		Example: `  # First 10 animals
  safari-bingo inspect -i animals.csv

  # Every animal
  safari-bingo inspect -i animals.csv --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := animals.NewLoader(csvFile).Load()
			if err != nil {
				return fmt.Errorf("failed to load animals: %w", err)
			}

			store, err := storage.New(a.cfg.ImagesDir)
			if err != nil {
				return err
			}

			return printInspect(cmd.OutOrStdout(), store, records, limit)
		},
	}

	cmd.Flags().StringVarP(&csvFile, "csv-file", "i", "", "Path to input file (CSV or Parquet)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of animals to list (0 for all)")

	_ = cmd.MarkFlagRequired("csv-file")

	return cmd
}

func printInspect(w io.Writer, store *storage.Store, records []models.Animal, limit int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMMON NAME\tCROP\tIMAGE\tTHUMBNAIL")

	var photos, thumbs int
	for i, r := range records {
		hasImage, err := store.HasImage(r.ID)
		if err != nil {
			return err
		}
		hasThumb, err := store.HasThumbnail(r.ID)
		if err != nil {
			return err
		}
		if hasImage {
			photos++
		}
		if hasThumb {
			thumbs++
		}
		if limit <= 0 || i < limit {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CommonName, r.CropFocus, yesNo(hasImage), yesNo(hasThumb))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d animals, %d photos, %d thumbnails in %s\n", len(records), photos, thumbs, store.Dir())
	return err
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
