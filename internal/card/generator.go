// Package card drives a bingo card run: sample animals, fetch photos, build thumbnails, join them.
package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanorth/safari-bingo/internal/animals"
	"github.com/alanorth/safari-bingo/internal/grid"
	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/thumbnail"
)

// ImageFetcher makes sure the photo for an animal is on disk
type ImageFetcher interface {
	EnsureImage(ctx context.Context, animal models.Animal) (bool, error)
}

// ThumbnailBuilder makes sure the thumbnail for an animal is on disk
type ThumbnailBuilder interface {
	EnsureThumbnail(animal models.Animal) (bool, error)
}

// Assembler joins thumbnails into the card image
type Assembler interface {
	Assemble(ids []string, across int, outputPath string) error
}

// Options for a single card
type Options struct {
	Across     int
	OutputPath string
	Seed       uint64 // zero picks a random seed
	Jobs       int    // concurrent downloads, values below 2 download one at a time
	Source     string // input table, recorded in the manifest
}

// Result summarizes a run
type Result struct {
	Downloaded       int
	ImagesCached     int
	FetchFailed      int
	Built            int
	ThumbnailsCached int
	BuildFailed      int
	MissingSource    int

	Seed         uint64
	Sampled      []models.Animal
	OutputPath   string
	ManifestPath string
}

// SampledIDs returns the ids on the card in grid order
func (r *Result) SampledIDs() []string {
	return animals.IDs(r.Sampled)
}

// Generator runs the passes in order
type Generator struct {
	fetcher   ImageFetcher
	builder   ThumbnailBuilder
	assembler Assembler
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator wires the components. A nil logger uses slog.Default.
func NewGenerator(fetcher ImageFetcher, builder ThumbnailBuilder, assembler Assembler, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		fetcher:   fetcher,
		builder:   builder,
		assembler: assembler,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate builds one card from records. Per-animal download and thumbnail failures are
// logged and counted; a failed assembly is returned together with the counts so far.
func (g *Generator) Generate(ctx context.Context, records []models.Animal, opts Options) (*Result, error) {
	if opts.Across < 1 {
		return nil, fmt.Errorf("%w: across must be at least 1, got %d", grid.ErrInvalidGridSize, opts.Across)
	}
	if opts.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	if ext := strings.ToLower(filepath.Ext(opts.OutputPath)); ext == ".yaml" || ext == ".yml" {
		return nil, fmt.Errorf("output path %s would be overwritten by the card manifest, use a .jpg name", opts.OutputPath)
	}

	n := opts.Across * opts.Across
	if len(records) < n {
		return nil, fmt.Errorf("a %dx%d card needs %d animals but only %d were loaded", opts.Across, opts.Across, n, len(records))
	}

	rng, seed := animals.NewRand(opts.Seed)
	sample, err := animals.Sample(records, n, rng)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Seed:       seed,
		Sampled:    sample,
		OutputPath: opts.OutputPath,
	}
	g.logger.Info("Sampled animals", "count", n, "seed", seed)

	if err := g.fetchPass(ctx, sample, opts.Jobs, res); err != nil {
		return res, err
	}
	if err := g.thumbnailPass(ctx, sample, res); err != nil {
		return res, err
	}

	if err := g.assembler.Assemble(res.SampledIDs(), opts.Across, opts.OutputPath); err != nil {
		return res, fmt.Errorf("failed to assemble card: %w", err)
	}

	manifestPath := ManifestPath(opts.OutputPath)
	manifest := NewManifest(g.now(), opts, seed, sample)
	if err := WriteManifest(manifestPath, manifest); err != nil {
		return res, err
	}
	res.ManifestPath = manifestPath

	return res, nil
}

// Prefetch downloads photos for every record without building anything
func (g *Generator) Prefetch(ctx context.Context, records []models.Animal, jobs int) (*Result, error) {
	res := &Result{}
	if err := g.fetchPass(ctx, records, jobs, res); err != nil {
		return res, err
	}
	return res, nil
}

func (g *Generator) fetchPass(ctx context.Context, records []models.Animal, jobs int, res *Result) error {
	var mu sync.Mutex
	fetch := func(ctx context.Context, a models.Animal) {
		downloaded, err := g.fetcher.EnsureImage(ctx, a)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			res.FetchFailed++
			g.logger.Error("Failed to download image", "id", a.ID, "common_name", a.CommonName, "error", err)
		case downloaded:
			res.Downloaded++
		default:
			res.ImagesCached++
		}
	}

	if jobs < 2 {
		for _, a := range records {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("fetch interrupted: %w", err)
			}
			fetch(ctx, a)
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for _, a := range records {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			fetch(egCtx, a)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch interrupted: %w", err)
	}
	return nil
}

func (g *Generator) thumbnailPass(ctx context.Context, records []models.Animal, res *Result) error {
	for _, a := range records {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("thumbnail pass interrupted: %w", err)
		}

		built, err := g.builder.EnsureThumbnail(a)
		switch {
		case errors.Is(err, thumbnail.ErrMissingSourceImage):
			res.MissingSource++
			g.logger.Warn("Skipping thumbnail, image was not downloaded", "id", a.ID, "common_name", a.CommonName)
		case err != nil:
			res.BuildFailed++
			g.logger.Error("Failed to create thumbnail", "id", a.ID, "common_name", a.CommonName, "error", err)
		case built:
			res.Built++
		default:
			res.ThumbnailsCached++
		}
	}
	return nil
}
