// Package grid joins square thumbnails into the printable card.
package grid

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"

	"golang.org/x/image/draw"

	"github.com/alanorth/safari-bingo/internal/storage"
)

const (
	// Shim is the gap in pixels between neighbouring tiles
	Shim = 2

	// Quality is the JPEG quality of the card
	Quality = 75
)

var (
	// ErrInvalidGridSize means the number of ids is not across squared
	ErrInvalidGridSize = errors.New("invalid grid size")

	// ErrMissingThumbnail is matched by every MissingThumbnailError
	ErrMissingThumbnail = errors.New("thumbnail is missing")
)

// MissingThumbnailError names the id whose thumbnail could not be found
type MissingThumbnailError struct {
	ID   string
	Path string
}

func (e *MissingThumbnailError) Error() string {
	return fmt.Sprintf("thumbnail for %s is missing (%s)", e.ID, e.Path)
}

func (e *MissingThumbnailError) Is(target error) bool {
	return target == ErrMissingThumbnail
}

// Assembler builds the card from thumbnails in the asset store
type Assembler struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewAssembler creates an assembler. A nil logger uses slog.Default.
func NewAssembler(store *storage.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:  store,
		logger: logger,
	}
}

// Assemble tiles the thumbnails for ids row by row into an across×across JPEG at outputPath.
// Nothing is written unless every thumbnail is present and decodable.
func (a *Assembler) Assemble(ids []string, across int, outputPath string) error {
	if across < 1 || len(ids) != across*across {
		return fmt.Errorf("%w: %d ids for a %dx%d grid", ErrInvalidGridSize, len(ids), across, across)
	}

	paths := make([]string, len(ids))
	for i, id := range ids {
		paths[i] = a.store.ThumbnailPath(id)
		ok, err := storage.Exists(paths[i])
		if err != nil {
			return err
		}
		if !ok {
			return &MissingThumbnailError{ID: id, Path: paths[i]}
		}
	}

	tiles := make([]image.Image, len(ids))
	for i, path := range paths {
		img, err := decodeFile(path)
		if err != nil {
			return fmt.Errorf("failed to load thumbnail for %s: %w", ids[i], err)
		}
		tiles[i] = img
	}

	card := Join(tiles, across, Shim)

	err := storage.WriteAtomic(outputPath, func(w io.Writer) error {
		if err := jpeg.Encode(w, card, &jpeg.Options{Quality: Quality}); err != nil {
			return fmt.Errorf("failed to encode card: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write card: %w", err)
	}

	b := card.Bounds()
	a.logger.Info("Generated card", "grid", fmt.Sprintf("%dx%d", across, across), "width", b.Dx(), "height", b.Dy(), "path", outputPath)
	return nil
}

// Join lays tiles out row-major, across per row, with shim pixels between cells.
// Cells are sized to the largest tile and each tile sits at its cell's top-left corner.
func Join(tiles []image.Image, across, shim int) *image.RGBA {
	var cellW, cellH int
	for _, t := range tiles {
		b := t.Bounds()
		cellW = max(cellW, b.Dx())
		cellH = max(cellH, b.Dy())
	}

	rows := (len(tiles) + across - 1) / across
	width := across*cellW + (across-1)*shim
	height := rows*cellH + max(rows-1, 0)*shim

	card := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(card, card.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for i, t := range tiles {
		col, row := i%across, i/across
		origin := image.Pt(col*(cellW+shim), row*(cellH+shim))
		b := t.Bounds()
		draw.Draw(card, image.Rectangle{Min: origin, Max: origin.Add(b.Size())}, t, b.Min, draw.Over)
	}
	return card
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
