// Package thumbnail turns a downloaded animal photo into a labeled square tile.
package thumbnail

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/alanorth/safari-bingo/internal/models"
	"github.com/alanorth/safari-bingo/internal/storage"
)

// Size is the edge length of every thumbnail
const Size = 600

var (
	// ErrMissingSourceImage means the photo for an animal has not been downloaded
	ErrMissingSourceImage = errors.New("source image is missing")

	// ErrBuildFailed is matched by every BuildError
	ErrBuildFailed = errors.New("thumbnail build failed")
)

// BuildError reports a thumbnail that could not be produced
type BuildError struct {
	ID  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build thumbnail for %s: %v", e.ID, e.Err)
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuildFailed
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Builder produces images/{id}_thumb.png from images/{id}.jpg
type Builder struct {
	store  *storage.Store
	labels *LabelRenderer
	logger *slog.Logger
}

// NewBuilder creates a thumbnail builder. A nil logger uses slog.Default.
func NewBuilder(store *storage.Store, logger *slog.Logger) (*Builder, error) {
	labels, err := NewLabelRenderer()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:  store,
		labels: labels,
		logger: logger,
	}, nil
}

// Close releases font resources
func (b *Builder) Close() error {
	return b.labels.Close()
}

// EnsureThumbnail builds the thumbnail for animal unless it already exists.
// It reports whether a thumbnail was written.
func (b *Builder) EnsureThumbnail(animal models.Animal) (bool, error) {
	srcPath := b.store.ImagePath(animal.ID)
	ok, err := storage.Exists(srcPath)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingSourceImage, srcPath)
	}

	dstPath := b.store.ThumbnailPath(animal.ID)
	ok, err = storage.Exists(dstPath)
	if err != nil {
		return false, err
	}
	if ok {
		b.logger.Debug("Thumbnail already present", "id", animal.ID, "common_name", animal.CommonName)
		return false, nil
	}

	b.logger.Info("Creating thumbnail", "id", animal.ID, "common_name", animal.CommonName)

	src, err := decodeFile(srcPath)
	if err != nil {
		return false, &BuildError{ID: animal.ID, Err: err}
	}

	thumb, err := b.Build(src, animal)
	if err != nil {
		return false, &BuildError{ID: animal.ID, Err: err}
	}

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	err = storage.WriteAtomic(dstPath, func(w io.Writer) error {
		if err := encoder.Encode(w, thumb); err != nil {
			return fmt.Errorf("failed to encode thumbnail: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, &BuildError{ID: animal.ID, Err: err}
	}

	return true, nil
}

// Build crops src to a Size×Size square and draws the animal's name along the bottom edge
func (b *Builder) Build(src image.Image, animal models.Animal) (*image.NRGBA, error) {
	thumb, err := Crop(src, animal.CropFocus, Size)
	if err != nil {
		return nil, err
	}

	label, err := b.labels.Render(LabelMarkup(animal.CommonName))
	if err != nil {
		return nil, fmt.Errorf("failed to render label: %w", err)
	}

	lb := label.Bounds()
	dst := image.Rect(0, Size-lb.Dy(), lb.Dx(), Size)
	draw.Draw(thumb, dst, label, lb.Min, draw.Over)

	return thumb, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
