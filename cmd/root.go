package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alanorth/safari-bingo/internal/card"
	"github.com/alanorth/safari-bingo/internal/config"
	"github.com/alanorth/safari-bingo/internal/grid"
	"github.com/alanorth/safari-bingo/internal/images"
	"github.com/alanorth/safari-bingo/internal/logging"
	"github.com/alanorth/safari-bingo/internal/storage"
	"github.com/alanorth/safari-bingo/internal/thumbnail"
)

// app carries resolved settings from the root command into subcommands
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "safari-bingo",
		Short: "Generate safari bingo cards from a table of animals",
		Long: `Safari Bingo builds printable bingo cards out of animal photos.

It reads a CSV or Parquet table of animals, downloads one photo per animal,
crops each photo to a labeled square thumbnail and joins a random selection
of thumbnails into a grid. Photos and thumbnails are cached in the images
directory, so later runs only fetch what is missing.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(os.Stderr, cfg.Debug)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Path to a YAML config file")
	flags.BoolP("debug", "d", false, "Print debug messages to standard error")
	flags.String("images-dir", storage.DefaultDir, "Directory for downloaded photos and thumbnails")
	flags.String("user-agent", images.DefaultUserAgent, "User-Agent header sent when downloading photos")
	flags.Duration("timeout", images.DefaultTimeout, "Timeout for each photo download")
	flags.Float64("rate-limit", images.DefaultRateLimit, "Maximum downloads per second (0 for no limit)")

	// Add subcommands
	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newFetchCmd(a))
	cmd.AddCommand(newInspectCmd(a))

	return cmd
}

// pipeline holds the components built from the resolved config
type pipeline struct {
	store     *storage.Store
	generator *card.Generator
	builder   *thumbnail.Builder
}

func (p *pipeline) Close() error {
	return p.builder.Close()
}

func (a *app) pipeline() (*pipeline, error) {
	store, err := storage.New(a.cfg.ImagesDir)
	if err != nil {
		return nil, err
	}

	fetcher := images.NewFetcher(store,
		images.WithHTTPClient(&http.Client{}),
		images.WithUserAgent(a.cfg.UserAgent),
		images.WithTimeout(a.cfg.RequestTimeout),
		images.WithRateLimit(a.cfg.RateLimit),
		images.WithLogger(a.logger),
	)

	builder, err := thumbnail.NewBuilder(store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail builder: %w", err)
	}

	return &pipeline{
		store:     store,
		generator: card.NewGenerator(fetcher, builder, grid.NewAssembler(store, a.logger), a.logger),
		builder:   builder,
	}, nil
}
